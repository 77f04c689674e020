package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/frahmantamala/payment-gate/internal/payment"
)

type store struct {
	mu      sync.Mutex
	records map[string]*payment.Record
}

type ByExpiresAt []*payment.Record

func (a ByExpiresAt) Len() int      { return len(a) }
func (a ByExpiresAt) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a ByExpiresAt) Less(i, j int) bool {
	if a[i].ExpiresAt.Equal(*a[j].ExpiresAt) {
		return a[i].UserID < a[j].UserID
	}
	return a[i].ExpiresAt.Before(*a[j].ExpiresAt)
}

// New returns an in-memory payment.Store. A single mutex serializes every
// write, which makes Update atomic across all users.
func New() payment.Store {
	return &store{
		records: make(map[string]*payment.Record),
	}
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*payment.Record)
}

func (s *store) findByExternalPaymentID(id string) *payment.Record {
	var found *payment.Record
	for _, item := range s.records {
		if item.ExternalPaymentID != id {
			continue
		}
		if item.Status == payment.StatusCompleted {
			return item
		}
		if found == nil {
			found = item
		}
	}
	return found
}

// checkUnique mirrors the partial unique index on completed external ids.
func (s *store) checkUnique(data *payment.Record) error {
	if data.Status != payment.StatusCompleted || data.ExternalPaymentID == "" {
		return nil
	}
	for _, item := range s.records {
		if item.UserID == data.UserID {
			continue
		}
		if item.Status == payment.StatusCompleted && item.ExternalPaymentID == data.ExternalPaymentID {
			return payment.ErrExternalPaymentIDTaken
		}
	}
	return nil
}

// Get implements payment.Store.Get
func (s *store) Get(ctx context.Context, userID string) (*payment.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.records[userID]
	if !ok {
		return nil, payment.ErrRecordNotFound
	}
	return item.Clone(), nil
}

// GetByExternalPaymentID implements payment.Store.GetByExternalPaymentID
func (s *store) GetByExternalPaymentID(ctx context.Context, externalPaymentID string) (*payment.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if externalPaymentID == "" {
		return nil, payment.ErrRecordNotFound
	}

	item := s.findByExternalPaymentID(externalPaymentID)
	if item == nil {
		return nil, payment.ErrRecordNotFound
	}
	return item.Clone(), nil
}

// Upsert implements payment.Store.Upsert
func (s *store) Upsert(ctx context.Context, data *payment.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.put(data)
}

func (s *store) put(data *payment.Record) error {
	if err := s.checkUnique(data); err != nil {
		return err
	}

	if existing, ok := s.records[data.UserID]; ok {
		// created_at is write-once
		data.CreatedAt = existing.CreatedAt
	} else if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now()
	}
	if data.UpdatedAt.IsZero() {
		data.UpdatedAt = data.CreatedAt
	}

	s.records[data.UserID] = data.Clone()
	return nil
}

// Update implements payment.Store.Update
func (s *store) Update(ctx context.Context, userID string, fn payment.UpdateFunc) (*payment.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current *payment.Record
	if item, ok := s.records[userID]; ok {
		current = item.Clone()
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}

	next.UserID = userID
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := s.put(next); err != nil {
		return nil, err
	}
	return s.records[userID].Clone(), nil
}

// ListExpiring implements payment.Store.ListExpiring
func (s *store) ListExpiring(ctx context.Context, from, to time.Time, limit int) ([]*payment.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res []*payment.Record
	for _, item := range s.records {
		if item.Status != payment.StatusCompleted || item.ExpiresAt == nil {
			continue
		}
		if item.ExpiresAt.After(from) && !item.ExpiresAt.After(to) {
			res = append(res, item.Clone())
		}
	}

	sort.Sort(ByExpiresAt(res))
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}
