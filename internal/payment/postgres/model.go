package postgres

import (
	"time"

	model "github.com/frahmantamala/payment-gate/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-gate/internal/payment"
)

func toModel(r *payment.Record) *model.UserPayment {
	m := &model.UserPayment{
		UserID:      r.UserID,
		Status:      string(r.Status),
		Amount:      r.Amount,
		CompletedAt: storedTimePtr(r.CompletedAt),
		ExpiresAt:   storedTimePtr(r.ExpiresAt),
		CreatedAt:   storedTime(r.CreatedAt),
		UpdatedAt:   storedTime(r.UpdatedAt),
	}
	if r.ExternalPaymentID != "" {
		id := r.ExternalPaymentID
		m.ExternalPaymentID = &id
	}
	if r.Currency != "" {
		c := r.Currency
		m.Currency = &c
	}
	return m
}

func fromModel(m *model.UserPayment) (*payment.Record, error) {
	status, err := payment.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}

	r := &payment.Record{
		UserID:      m.UserID,
		Status:      status,
		Amount:      m.Amount,
		CompletedAt: m.CompletedAt,
		ExpiresAt:   m.ExpiresAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.ExternalPaymentID != nil {
		r.ExternalPaymentID = *m.ExternalPaymentID
	}
	if m.Currency != nil {
		r.Currency = *m.Currency
	}
	return r, nil
}

// storedTime rounds down to the microsecond precision of timestamptz, so a
// record returned from a write equals the same record read back later.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func storedTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := storedTime(*t)
	return &u
}
