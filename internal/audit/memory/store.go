package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/frahmantamala/payment-gate/internal/audit"
)

type store struct {
	mu      sync.Mutex
	nextID  int64
	entries []*audit.Entry
}

func New() audit.Store {
	return &store{}
}

func (s *store) Append(_ context.Context, entry *audit.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	entry.ID = s.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	cloned := *entry
	s.entries = append(s.entries, &cloned)
	return nil
}

func (s *store) ListByUser(_ context.Context, userID string, limit int) ([]*audit.Entry, error) {
	return s.list(audit.NormalizeLimit(limit), func(e *audit.Entry) bool {
		return e.UserID == userID
	}), nil
}

func (s *store) ListRecent(_ context.Context, limit int) ([]*audit.Entry, error) {
	return s.list(audit.NormalizeLimit(limit), func(*audit.Entry) bool {
		return true
	}), nil
}

func (s *store) list(limit int, keep func(*audit.Entry) bool) []*audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []*audit.Entry
	for _, e := range s.entries {
		if keep(e) {
			cloned := *e
			res = append(res, &cloned)
		}
	}

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].ID > res[j].ID
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res
}
