package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/core/events"
)

const (
	DefaultSweepSchedule = "@every 5m"
	defaultSweepBatch    = 100
	defaultSweepLookback = 24 * time.Hour
	maxSweepBatches      = 50
)

// ExpirySweeper announces entitlements whose expiry passed since the previous
// sweep. Expiry itself is enforced by the gate at read time; the sweeper only
// emits EntitlementExpired events.
type ExpirySweeper struct {
	store        Store
	publisher    events.Publisher
	logger       *slog.Logger
	storeTimeout time.Duration
	batch        int
	now          func() time.Time

	mu        sync.Mutex
	lastSweep time.Time
	cron      *cron.Cron
}

func NewExpirySweeper(store Store, publisher events.Publisher, storeTimeout time.Duration, logger *slog.Logger) *ExpirySweeper {
	now := func() time.Time { return time.Now().UTC() }
	return &ExpirySweeper{
		store:        store,
		publisher:    publisher,
		logger:       logger,
		storeTimeout: storeTimeout,
		batch:        defaultSweepBatch,
		now:          now,
		lastSweep:    now().Add(-defaultSweepLookback),
	}
}

// WithClock replaces the time source and sets the start of the next sweep window.
func (s *ExpirySweeper) WithClock(now func() time.Time, lastSweep time.Time) *ExpirySweeper {
	s.now = now
	s.lastSweep = lastSweep
	return s
}

func (s *ExpirySweeper) WithBatchSize(n int) *ExpirySweeper {
	if n > 0 {
		s.batch = n
	}
	return s
}

// Sweep publishes one event per entitlement that expired in (lastSweep, now]
// and returns how many were announced.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, to := s.lastSweep, s.now()
	announced := 0
	// records at the boundary instant of a full batch are fetched again by the
	// next page; seen keeps them from being announced twice
	seen := make(map[string]time.Time)

	for i := 0; i < maxSweepBatches; i++ {
		records, err := s.list(ctx, from, to)
		if err != nil {
			s.lastSweep = from
			return announced, internal.ErrStoreUnavailable.WithCause(fmt.Errorf("list expiring: %w", err))
		}

		fresh := 0
		for _, record := range records {
			if at, ok := seen[record.UserID]; ok && at.Equal(*record.ExpiresAt) {
				continue
			}
			seen[record.UserID] = *record.ExpiresAt
			fresh++

			event := events.NewEntitlementExpiredEvent(record.UserID, record.ExternalPaymentID, *record.ExpiresAt)
			if err := s.publisher.Publish(ctx, event); err != nil {
				s.logger.Error("failed to publish entitlement expired event", "user_id", record.UserID, "error", err)
				continue
			}
			announced++
		}

		if len(records) < s.batch {
			s.lastSweep = to
			break
		}
		last := *records[len(records)-1].ExpiresAt
		if fresh == 0 {
			s.logger.Debug("expiry sweep page held no new records", "at", last)
			s.lastSweep = last
			break
		}
		from = last.Add(-time.Nanosecond)
		s.lastSweep = from
	}

	if announced > 0 {
		s.logger.Info("expired entitlements announced", "count", announced, "until", to)
	}
	return announced, nil
}

func (s *ExpirySweeper) list(ctx context.Context, from, to time.Time) ([]*Record, error) {
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.ListExpiring(ctx, from, to, s.batch)
}

// Start schedules Sweep on a cron spec such as "@every 5m" or "*/10 * * * *".
func (s *ExpirySweeper) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultSweepSchedule
	}

	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(spec, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("expiry sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid expiry sweep schedule %q: %w", spec, err)
	}

	s.cron = c
	c.Start()
	s.logger.Info("expiry sweeper started", "schedule", spec)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *ExpirySweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("expiry sweeper stopped")
}
