package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/core/common/validation"
	"github.com/frahmantamala/payment-gate/internal/core/events"
	"github.com/frahmantamala/payment-gate/pkg/logger"
)

// GateAPI is the entitlement surface consumed by handlers and the enforcer.
type GateAPI interface {
	IsEntitled(ctx context.Context, userID string) (bool, error)
	Status(ctx context.Context, userID string) (*Record, error)
	Initialize(ctx context.Context, userID string) (*Record, error)
	Confirm(ctx context.Context, c Confirmation) (*Record, error)
}

type GateConfig struct {
	// Enabled=false entitles every user without touching the store.
	Enabled        bool
	EntitlementTTL time.Duration
	StoreTimeout   time.Duration
}

// Confirmation is a processor verdict for one transaction, already bound to
// the authenticated user.
type Confirmation struct {
	UserID            string
	ExternalPaymentID string
	Amount            decimal.Decimal
	Currency          string
	Outcome           Outcome
	ProcessorStatus   string
}

func (c *Confirmation) validate() error {
	switch {
	case c.UserID == "":
		return internal.ErrInvalidConfirmation.WithMessage("confirmation has no user")
	case strings.TrimSpace(c.ExternalPaymentID) == "":
		return internal.ErrInvalidConfirmation.WithMessage("external payment id is required")
	case c.Amount.IsNegative():
		return internal.ErrInvalidConfirmation.WithMessage("amount must not be negative")
	case strings.TrimSpace(c.Currency) == "":
		return internal.ErrInvalidConfirmation.WithMessage("currency is required")
	case !validation.KnownCurrency(c.Currency):
		return internal.ErrInvalidConfirmation.WithMessage(fmt.Sprintf("unknown currency %q", c.Currency))
	case c.Outcome != OutcomeSuccess && c.Outcome != OutcomeFailure:
		return internal.ErrInvalidConfirmation.WithMessage(fmt.Sprintf("unknown outcome %q", c.Outcome))
	}
	return nil
}

// Gate owns every transition of a user's payment record.
type Gate struct {
	store     Store
	publisher events.Publisher
	config    GateConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewGate(store Store, publisher events.Publisher, config GateConfig, logger *slog.Logger) *Gate {
	return &Gate{
		store:     store,
		publisher: publisher,
		config:    config,
		logger:    logger,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

// WithClock replaces the time source, for tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// IsEntitled reports whether the user may use the paid feature. It never
// creates a record. A store failure is reported as unavailable, never as
// entitled.
func (g *Gate) IsEntitled(ctx context.Context, userID string) (bool, error) {
	if !g.config.Enabled {
		return true, nil
	}
	if userID == "" {
		return false, nil
	}

	record, err := g.get(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, g.unavailable(ctx, "is entitled", err)
	}
	return record.EntitledAt(g.now()), nil
}

// Status returns the user's record, or a NONE placeholder when there is none.
func (g *Gate) Status(ctx context.Context, userID string) (*Record, error) {
	record, err := g.get(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return &Record{UserID: userID, Status: StatusNone}, nil
	}
	if err != nil {
		return nil, g.unavailable(ctx, "status", err)
	}
	return record, nil
}

// Initialize records the user's intent to pay. A missing record is created
// PENDING and a FAILED one is reset to PENDING for a retry; PENDING and
// COMPLETED records are returned untouched.
func (g *Gate) Initialize(ctx context.Context, userID string) (*Record, error) {
	if userID == "" {
		return nil, internal.ErrAuthenticationFailed
	}

	log := logger.FromOr(ctx, g.logger).With("user_id", userID)
	now := g.now()

	var transition string
	record, err := g.update(ctx, userID, func(current *Record) (*Record, error) {
		transition = ""
		if current == nil {
			transition = "created"
			return &Record{
				UserID:    userID,
				Status:    StatusPending,
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		}

		switch current.Status {
		case StatusNone, StatusFailed:
			transition = "retry"
			next := current.Clone()
			next.clearAttempt()
			next.Status = StatusPending
			next.UpdatedAt = now
			return next, nil
		default:
			return nil, nil
		}
	})
	if err != nil {
		return nil, g.unavailable(ctx, "initialize", err)
	}

	if transition != "" {
		log.Info("payment initialized", "transition", transition, "status", record.Status)
	}
	return record, nil
}

// Confirm applies a processor verdict. It is the only place where the
// cross-account and double-charge guards live:
//   - an external id already held by another user is a conflict,
//   - a replay of the id that completed this user's payment is a no-op,
//   - a different id against a completed payment is a duplicate confirmation.
//
// PaymentCompleted is emitted exactly once per completed transition.
func (g *Gate) Confirm(ctx context.Context, c Confirmation) (*Record, error) {
	c.ExternalPaymentID = strings.TrimSpace(c.ExternalPaymentID)
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	if err := c.validate(); err != nil {
		return nil, err
	}

	log := logger.FromOr(ctx, g.logger).With(
		"user_id", c.UserID,
		"external_payment_id", c.ExternalPaymentID,
		"outcome", c.Outcome)

	owner, err := g.getByExternalPaymentID(ctx, c.ExternalPaymentID)
	switch {
	case err == nil && owner.UserID != c.UserID:
		log.Warn("external payment id belongs to another account, possible replay attack",
			"owner_user_id", owner.UserID,
			"owner_status", owner.Status)
		return nil, internal.ErrPaymentConflict
	case err == nil, errors.Is(err, ErrRecordNotFound):
	default:
		return nil, g.unavailable(ctx, "confirm lookup", err)
	}

	now := g.now()

	var applied *Record
	record, err := g.update(ctx, c.UserID, func(current *Record) (*Record, error) {
		applied = nil
		if current == nil {
			current = &Record{UserID: c.UserID, Status: StatusNone, CreatedAt: now}
		}

		switch current.Status {
		case StatusCompleted:
			if current.ExternalPaymentID == c.ExternalPaymentID {
				return nil, nil
			}
			return nil, internal.ErrDuplicateConfirmation
		case StatusFailed:
			if current.ExternalPaymentID == c.ExternalPaymentID && c.Outcome == OutcomeFailure {
				return nil, nil
			}
		}

		next := current.Clone()
		next.ExternalPaymentID = c.ExternalPaymentID
		next.Amount = decimal.NewNullDecimal(c.Amount)
		next.Currency = c.Currency
		next.UpdatedAt = now
		next.CompletedAt = nil
		next.ExpiresAt = nil

		if c.Outcome == OutcomeSuccess {
			next.Status = StatusCompleted
			completedAt := now
			next.CompletedAt = &completedAt
			if g.config.EntitlementTTL > 0 {
				expiresAt := now.Add(g.config.EntitlementTTL)
				next.ExpiresAt = &expiresAt
			}
		} else {
			next.Status = StatusFailed
		}

		applied = next
		return next, nil
	})

	switch {
	case err == nil:
	case errors.Is(err, internal.ErrDuplicateConfirmation):
		log.Info("confirmation rejected, user already has a completed payment")
		return nil, err
	case errors.Is(err, ErrExternalPaymentIDTaken):
		log.Warn("external payment id was completed by another account concurrently, possible replay attack")
		return nil, internal.ErrPaymentConflict
	default:
		return nil, g.unavailable(ctx, "confirm", err)
	}

	if applied == nil {
		log.Info("confirmation replay ignored", "status", record.Status)
		return record, nil
	}

	g.emit(ctx, c, record)
	log.Info("payment confirmation applied", "status", record.Status)
	return record, nil
}

func (g *Gate) emit(ctx context.Context, c Confirmation, record *Record) {
	if g.publisher == nil {
		return
	}

	var event events.Event
	switch record.Status {
	case StatusCompleted:
		event = events.NewPaymentCompletedEvent(c.UserID, c.ExternalPaymentID, c.Amount, c.Currency)
	case StatusFailed:
		event = events.NewPaymentFailedEvent(c.UserID, c.ExternalPaymentID, c.Amount, c.Currency, c.ProcessorStatus)
	default:
		return
	}

	if err := g.publisher.Publish(internal.Detach(ctx), event); err != nil {
		logger.FromOr(ctx, g.logger).Error("failed to publish payment event",
			"error", err,
			"event_type", event.EventType(),
			"user_id", c.UserID)
	}
}

func (g *Gate) get(ctx context.Context, userID string) (*Record, error) {
	ctx, cancel := internal.WithTimeout(ctx, g.config.StoreTimeout)
	defer cancel()
	return g.store.Get(ctx, userID)
}

func (g *Gate) getByExternalPaymentID(ctx context.Context, id string) (*Record, error) {
	ctx, cancel := internal.WithTimeout(ctx, g.config.StoreTimeout)
	defer cancel()
	return g.store.GetByExternalPaymentID(ctx, id)
}

func (g *Gate) update(ctx context.Context, userID string, fn UpdateFunc) (*Record, error) {
	ctx, cancel := internal.WithTimeout(ctx, g.config.StoreTimeout)
	defer cancel()
	return g.store.Update(ctx, userID, fn)
}

func (g *Gate) unavailable(ctx context.Context, op string, err error) error {
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr
	}
	logger.FromOr(ctx, g.logger).Error("payment store call failed", "op", op, "error", err)
	return internal.ErrStoreUnavailable.WithCause(fmt.Errorf("%s: %w", op, err))
}
