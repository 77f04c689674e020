package middleware_test

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	chimiddleware "github.com/go-chi/chi/middleware"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/transport/middleware"
	"github.com/frahmantamala/payment-gate/pkg/rate"
)

type failingLimiter struct{}

func (failingLimiter) Allow(string) (bool, error) {
	return false, errors.New("limiter backend down")
}

var _ = Describe("Middleware", func() {
	var (
		logs   *bytes.Buffer
		logger *slog.Logger
	)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	BeforeEach(func() {
		logs = &bytes.Buffer{}
		logger = slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	})

	Describe("RequestID", func() {
		It("mints an id when the client sends none", func() {
			var seen string
			handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = chimiddleware.GetReqID(r.Context())
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(seen).NotTo(BeEmpty())
			Expect(rec.Header().Get(middleware.RequestIDHeader)).To(Equal(seen))
		})
	})

	Describe("RecoveryMiddleware", func() {
		It("turns a panic into a 500", func() {
			handler := middleware.RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic("boom")
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(logs.String()).To(ContainSubstring("panic recovered"))
		})
	})

	Describe("LoggingMiddleware", func() {
		It("keeps the sesskey out of the logs and the body intact", func() {
			// Given
			var received string
			handler := middleware.LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				received = string(body)
				w.WriteHeader(http.StatusCreated)
			}))
			body := `{"external_payment_id":"PAY-1","sesskey":"0123456789abcdef0123456789abcdef"}`
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/confirm", strings.NewReader(body))
			req.Header.Set("X-Sesskey", "0123456789abcdef0123456789abcdef")

			// When
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			// Then
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(received).To(Equal(body))
			Expect(logs.String()).To(ContainSubstring("PAY-1"))
			Expect(logs.String()).NotTo(ContainSubstring("0123456789abcdef0123456789abcdef"))
		})

		It("redacts the sesskey field of a form confirmation", func() {
			// Given
			handler := middleware.LoggingMiddleware(logger)(ok)
			form := "external_payment_id=PAY-2&amount=6.00&sesskey=fedcba9876543210fedcba9876543210"
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/confirm?sesskey=fedcba9876543210fedcba9876543210", strings.NewReader(form))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")

			// When
			handler.ServeHTTP(httptest.NewRecorder(), req)

			// Then
			Expect(logs.String()).To(ContainSubstring("PAY-2"))
			Expect(logs.String()).To(ContainSubstring("amount=6.00"))
			Expect(logs.String()).NotTo(ContainSubstring("fedcba9876543210fedcba9876543210"))
		})

		It("streams bodies larger than the logged prefix", func() {
			var received int
			handler := middleware.LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				received = len(body)
			}))

			large := strings.Repeat("a", 64<<10)
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(large)))

			Expect(received).To(Equal(len(large)))
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests from allowed origins", func() {
			handler := middleware.CORS("https://lms.example.com")(ok)
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/payment/confirm", nil)
			req.Header.Set("Origin", "https://lms.example.com")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://lms.example.com"))
			Expect(rec.Header().Get("Access-Control-Allow-Headers")).To(ContainSubstring("X-Sesskey"))
		})

		It("does not echo unknown origins", func() {
			handler := middleware.CORS("https://lms.example.com")(ok)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Origin", "https://evil.example.com")

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
		})

		It("allows any origin with a wildcard", func() {
			handler := middleware.CORS("*")(ok)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Origin", "https://lms.example.com")

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://lms.example.com"))
		})
	})

	Describe("RateLimit", func() {
		It("limits per user", func() {
			handler := middleware.RateLimit(rate.NewLocalRateLimiter(0.001), logger)(ok)

			serve := func(userID string) int {
				req := httptest.NewRequest(http.MethodPost, "/", nil)
				req = req.WithContext(internal.ContextWithUserID(req.Context(), userID))
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				return rec.Code
			}

			Expect(serve("user-1")).To(Equal(http.StatusOK))
			Expect(serve("user-1")).To(Equal(http.StatusTooManyRequests))
			Expect(serve("user-2")).To(Equal(http.StatusOK))
		})

		It("lets requests through when the limiter fails", func() {
			handler := middleware.RateLimit(failingLimiter{}, logger)(ok)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})
})
