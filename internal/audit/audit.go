package audit

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

const DefaultListLimit = 50

var ErrInvalidEntry = errors.New("invalid confirmation log entry")

// Entry is one confirmation received from a client, accepted or not.
type Entry struct {
	ID                int64               `json:"id"`
	UserID            string              `json:"user_id"`
	ExternalPaymentID string              `json:"external_payment_id,omitempty"`
	ProcessorStatus   string              `json:"processor_status,omitempty"`
	Amount            decimal.NullDecimal `json:"amount"`
	Currency          string              `json:"currency,omitempty"`
	Result            string              `json:"result"`
	ErrorCode         string              `json:"error_code,omitempty"`
	Message           string              `json:"message,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
}

func (e *Entry) Validate() error {
	if e.UserID == "" {
		return errors.Join(ErrInvalidEntry, errors.New("user id is required"))
	}
	if e.Result != ResultSuccess && e.Result != ResultError {
		return errors.Join(ErrInvalidEntry, errors.New("result must be success or error"))
	}
	return nil
}

// Store is the append-only confirmation log.
type Store interface {
	Append(ctx context.Context, entry *Entry) error

	// ListByUser returns the user's entries, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*Entry, error)

	// ListRecent returns the newest entries across all users.
	ListRecent(ctx context.Context, limit int) ([]*Entry, error)
}

func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultListLimit
	}
	return limit
}
