package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-gate/internal/audit"
	"github.com/frahmantamala/payment-gate/internal/audit/memory"
)

type failingStore struct {
	audit.Store
	mu    sync.Mutex
	calls int
}

func (f *failingStore) Append(context.Context, *audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("database is down")
}

var _ = Describe("Recorder", func() {
	var (
		store  audit.Store
		logger *slog.Logger
	)

	BeforeEach(func() {
		store = memory.New()
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	})

	It("writes every queued entry before shutdown returns", func() {
		// Given
		recorder := audit.NewRecorder(store, audit.RecorderConfig{MaxWorkers: 2, JobQueueSize: 4}, logger)

		// When
		for i := 0; i < 20; i++ {
			recorder.Record(&audit.Entry{UserID: "user-1", Result: audit.ResultSuccess})
		}
		recorder.Shutdown()

		// Then
		entries, err := store.ListByUser(context.Background(), "user-1", 100)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(20))
	})

	It("writes inline after shutdown", func() {
		// Given
		recorder := audit.NewRecorder(store, audit.RecorderConfig{}, logger)
		recorder.Shutdown()

		// When
		recorder.Record(&audit.Entry{UserID: "user-2", Result: audit.ResultError, ErrorCode: "INVALID_SESSKEY"})

		// Then
		entries, err := store.ListByUser(context.Background(), "user-2", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].CreatedAt.IsZero()).To(BeFalse())
	})

	It("swallows store failures", func() {
		// Given
		failing := &failingStore{}
		recorder := audit.NewRecorder(failing, audit.RecorderConfig{MaxWorkers: 1}, logger)

		// When
		recorder.Record(&audit.Entry{UserID: "user-1", Result: audit.ResultSuccess})
		recorder.Shutdown()

		// Then
		failing.mu.Lock()
		defer failing.mu.Unlock()
		Expect(failing.calls).To(Equal(1))
	})
})

var _ = Describe("Handler", func() {
	var (
		store   audit.Store
		handler *audit.Handler
	)

	BeforeEach(func() {
		store = memory.New()
		handler = audit.NewHandler(store, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))

		ctx := context.Background()
		Expect(store.Append(ctx, &audit.Entry{UserID: "user-1", Result: audit.ResultSuccess})).To(Succeed())
		Expect(store.Append(ctx, &audit.Entry{UserID: "user-2", Result: audit.ResultError})).To(Succeed())
	})

	It("lists recent confirmations across users", func() {
		// Given
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/payments/confirmations", nil)
		rec := httptest.NewRecorder()

		// When
		handler.ListConfirmations(rec, req)

		// Then
		Expect(rec.Code).To(Equal(http.StatusOK))
		var body audit.ListResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Entries).To(HaveLen(2))
		Expect(body.Entries[0].UserID).To(Equal("user-2"))
	})

	It("filters by user", func() {
		// Given
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/payments/confirmations?user_id=user-1", nil)
		rec := httptest.NewRecorder()

		// When
		handler.ListConfirmations(rec, req)

		// Then
		Expect(rec.Code).To(Equal(http.StatusOK))
		var body audit.ListResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Entries).To(HaveLen(1))
		Expect(body.Entries[0].UserID).To(Equal("user-1"))
	})

	It("rejects a malformed limit", func() {
		// Given
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/payments/confirmations?limit=abc", nil)
		rec := httptest.NewRecorder()

		// When
		handler.ListConfirmations(rec, req)

		// Then
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})
})
