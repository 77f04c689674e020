package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the closed set of states a user's payment record can be in.
type Status string

const (
	StatusNone      Status = "NONE"
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// ParseStatus normalizes a stored or user supplied status string.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusNone, "":
		return StatusNone, nil
	case StatusPending:
		return StatusPending, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusFailed:
		return StatusFailed, nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

func (s Status) String() string {
	return string(s)
}

// Outcome is the processor's verdict on a single transaction.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

var (
	ErrRecordNotFound         = errors.New("payment record not found")
	ErrExternalPaymentIDTaken = errors.New("external payment id already bound to a completed payment")
)

// Record is the payment state of a single user.
type Record struct {
	UserID            string              `json:"user_id"`
	Status            Status              `json:"status"`
	ExternalPaymentID string              `json:"external_payment_id,omitempty"`
	Amount            decimal.NullDecimal `json:"amount"`
	Currency          string              `json:"currency,omitempty"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty"`
	ExpiresAt         *time.Time          `json:"expires_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

func (r *Record) Validate() error {
	if r.UserID == "" {
		return errors.New("user id is required")
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}
	if r.Status == StatusCompleted && r.ExternalPaymentID == "" {
		return errors.New("completed payment requires an external payment id")
	}
	if r.Amount.Valid && r.Amount.Decimal.IsNegative() {
		return errors.New("amount must not be negative")
	}
	return nil
}

// EntitledAt reports whether the record grants access at the given instant.
func (r *Record) EntitledAt(now time.Time) bool {
	if r == nil || r.Status != StatusCompleted {
		return false
	}
	if r.ExpiresAt != nil && !now.Before(*r.ExpiresAt) {
		return false
	}
	return true
}

func (r *Record) Clone() *Record {
	cloned := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cloned.CompletedAt = &t
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		cloned.ExpiresAt = &t
	}
	return &cloned
}

// clearAttempt drops the fields of the previous transaction attempt.
func (r *Record) clearAttempt() {
	r.ExternalPaymentID = ""
	r.Amount = decimal.NullDecimal{}
	r.Currency = ""
	r.CompletedAt = nil
	r.ExpiresAt = nil
}

// UpdateFunc receives the current record (nil when absent) and returns the
// record to persist, or nil to leave storage untouched.
type UpdateFunc func(current *Record) (*Record, error)

// Store is durable storage for payment records keyed by user id.
type Store interface {
	// Get returns ErrRecordNotFound when the user has no record.
	Get(ctx context.Context, userID string) (*Record, error)

	// GetByExternalPaymentID finds the record bound to an external payment id
	// across all users, preferring a completed record when several match.
	GetByExternalPaymentID(ctx context.Context, externalPaymentID string) (*Record, error)

	// Upsert inserts or replaces the record for record.UserID. It returns
	// ErrExternalPaymentIDTaken when the write would bind a completed external
	// payment id that another user's completed record already holds.
	Upsert(ctx context.Context, record *Record) error

	// Update runs a read-check-write cycle for one user atomically with respect
	// to concurrent Update and Upsert calls for the same user.
	Update(ctx context.Context, userID string, fn UpdateFunc) (*Record, error)

	// ListExpiring returns completed records whose expiry falls in (from, to].
	ListExpiring(ctx context.Context, from, to time.Time, limit int) ([]*Record, error)
}
