package payment_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/frahmantamala/payment-gate/internal/core/events"
	"github.com/frahmantamala/payment-gate/internal/payment"
)

var errStoreDown = errors.New("connection refused")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingPublisher captures published events synchronously.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res []events.Event
	for _, e := range p.events {
		if e.EventType() == eventType {
			res = append(res, e)
		}
	}
	return res
}

// brokenStore fails every call, as an unreachable database would.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*payment.Record, error) {
	return nil, errStoreDown
}

func (brokenStore) GetByExternalPaymentID(context.Context, string) (*payment.Record, error) {
	return nil, errStoreDown
}

func (brokenStore) Upsert(context.Context, *payment.Record) error {
	return errStoreDown
}

func (brokenStore) Update(context.Context, string, payment.UpdateFunc) (*payment.Record, error) {
	return nil, errStoreDown
}

func (brokenStore) ListExpiring(context.Context, time.Time, time.Time, int) ([]*payment.Record, error) {
	return nil, errStoreDown
}

// slowStore blocks until the caller's context gives up.
type slowStore struct {
	brokenStore
}

func (slowStore) Get(ctx context.Context, _ string) (*payment.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
