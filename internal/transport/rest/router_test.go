package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/audit"
	auditmemory "github.com/frahmantamala/payment-gate/internal/audit/memory"
	"github.com/frahmantamala/payment-gate/internal/auth"
	"github.com/frahmantamala/payment-gate/internal/payment"
	"github.com/frahmantamala/payment-gate/internal/payment/memory"
	"github.com/frahmantamala/payment-gate/internal/transport/rest"
	"github.com/frahmantamala/payment-gate/pkg/rate"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var _ = Describe("Router", func() {
	var (
		tokens     *auth.JWTTokenGenerator
		sesskeys   *auth.SesskeyIssuer
		auditStore audit.Store
		dbErr      error
		handlers   rest.Handlers
		server     *httptest.Server
	)

	bearer := func(userID string, perms ...string) string {
		token, err := tokens.GenerateAccessToken(userID, "session-"+userID, perms)
		Expect(err).NotTo(HaveOccurred())
		return "Bearer " + token
	}

	do := func(method, path, authorization string, body io.Reader, headers map[string]string) *http.Response {
		req, err := http.NewRequest(method, server.URL+path, body)
		Expect(err).NotTo(HaveOccurred())
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}}
		resp, err := client.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	decode := func(resp *http.Response, dst any) {
		Expect(json.NewDecoder(resp.Body).Decode(dst)).To(Succeed())
	}

	BeforeEach(func() {
		lg := quietLogger()
		tokens = auth.NewJWTTokenGenerator("router-test-jwt-secret-0123456789abcdef", time.Minute)
		sesskeys = auth.NewSesskeyIssuer("router-test-session-secret-0123456789")
		auditStore = auditmemory.New()
		dbErr = nil

		gate := payment.NewGate(memory.New(), nil, payment.GateConfig{Enabled: true, StoreTimeout: time.Second}, lg)
		receiver := payment.NewReceiver(gate, sesskeys, payment.ReceiverConfig{}, lg).
			WithAuditRecorder(auditRecorderFunc(func(e *audit.Entry) {
				_ = auditStore.Append(context.Background(), e)
			}))

		handlers = rest.Handlers{
			Health: rest.NewHealthHandler(map[string]rest.Pinger{
				"postgres": rest.PingFunc(func(context.Context) error { return dbErr }),
			}),
			Auth: auth.NewHandler(tokens, sesskeys, lg),
			RBAC: auth.NewRBACAuthorization(auth.NewPermissionChecker(), lg),
			ABAC: &auth.ABACPolicy{},
			Payment: payment.NewHandler(gate, receiver, sesskeys, payment.CheckoutConfig{
				Price:    decimal.RequireFromString("6.00"),
				Currency: "EUR",
			}, lg),
			Enforcer:       payment.NewEnforcer(gate, "/api/v1/payment/checkout", lg),
			Audit:          audit.NewHandler(auditStore, lg),
			ConfirmLimiter: rate.NewLocalRateLimiter(1000),
		}
	})

	JustBeforeEach(func() {
		router := chi.NewRouter()
		rest.RegisterAllRoutes(router, handlers, quietLogger())
		server = httptest.NewServer(router)
		DeferCleanup(server.Close)
	})

	Describe("health", func() {
		It("answers ping without authentication", func() {
			resp := do(http.MethodGet, "/api/v1/ping", "", nil, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("reports an unreachable database", func() {
			dbErr = errors.New("connection refused")

			resp := do(http.MethodGet, "/api/v1/health", "", nil, nil)

			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
			var body rest.HealthResponse
			decode(resp, &body)
			Expect(body.Status).To(Equal(rest.HealthUnhealthy))
			Expect(body.Components).To(HaveKey("postgres"))
		})

		It("echoes the request id", func() {
			resp := do(http.MethodGet, "/api/v1/ping", "", nil, map[string]string{"X-Request-Id": "req-1"})
			Expect(resp.Header.Get("X-Request-Id")).To(Equal("req-1"))
		})
	})

	It("unlocks the recovery feature after a confirmed payment", func() {
		learner := bearer("user-1", auth.PermissionUseRecovery)

		By("denying access before payment")
		resp := do(http.MethodGet, "/api/v1/recovery/questions", learner, nil, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusPaymentRequired))

		By("redirecting browsers to checkout")
		resp = do(http.MethodGet, "/api/v1/recovery/questions", learner, nil, map[string]string{"Accept": "text/html"})
		Expect(resp.StatusCode).To(Equal(http.StatusSeeOther))
		Expect(resp.Header.Get("Location")).To(Equal("/api/v1/payment/checkout"))

		By("starting checkout")
		resp = do(http.MethodPost, "/api/v1/payment/checkout", learner, nil, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var checkout payment.CheckoutResponse
		decode(resp, &checkout)
		Expect(checkout.Status).To(Equal(payment.StatusPending))

		By("confirming the payment")
		body := `{"external_payment_id":"PAY-1","status":"COMPLETED","amount":"6.00","currency":"EUR"}`
		resp = do(http.MethodPost, "/api/v1/payment/confirm", learner, strings.NewReader(body), map[string]string{
			"Content-Type":        "application/json",
			payment.SesskeyHeader: checkout.Sesskey,
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var result payment.Result
		decode(resp, &result)
		Expect(result.Status).To(Equal(payment.ResultSuccess))

		By("granting access")
		resp = do(http.MethodGet, "/api/v1/recovery/questions", learner, nil, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var access rest.FeatureAccessResponse
		decode(resp, &access)
		Expect(access).To(Equal(rest.FeatureAccessResponse{
			Feature: "failed_questions_recovery",
			UserID:  "user-1",
			Access:  true,
		}))

		By("recording the confirmation")
		entries, err := auditStore.ListByUser(context.Background(), "user-1", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Result).To(Equal(audit.ResultSuccess))
	})

	It("rejects a confirmation replayed by another account", func() {
		body := `{"external_payment_id":"PAY-1","status":"COMPLETED","amount":"6.00","currency":"EUR"}`
		for _, userID := range []string{"user-1", "user-2"} {
			resp := do(http.MethodPost, "/api/v1/payment/confirm", bearer(userID), strings.NewReader(body), map[string]string{
				"Content-Type":        "application/json",
				payment.SesskeyHeader: sesskeys.Issue(userID, "session-"+userID),
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result payment.Result
			decode(resp, &result)
			if userID == "user-1" {
				Expect(result.Status).To(Equal(payment.ResultSuccess))
			} else {
				Expect(result.Status).To(Equal(payment.ResultError))
				Expect(result.Code).To(Equal(internal.ErrCodePaymentConflict))
			}
		}

		resp := do(http.MethodGet, "/api/v1/payment/entitlement", bearer("user-2"), nil, nil)
		var entitlement payment.EntitlementResponse
		decode(resp, &entitlement)
		Expect(entitlement.Entitled).To(BeFalse())
	})

	It("requires the recovery capability before checking payment", func() {
		resp := do(http.MethodGet, "/api/v1/recovery", bearer("user-1"), nil, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
	})

	It("requires authentication", func() {
		resp := do(http.MethodGet, "/api/v1/payment/entitlement", "", nil, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	Describe("admin routes", func() {
		It("limits the audit log to payment managers", func() {
			resp := do(http.MethodGet, "/api/v1/admin/payments/confirmations", bearer("user-1", auth.PermissionUseRecovery), nil, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))

			resp = do(http.MethodGet, "/api/v1/admin/payments/confirmations", bearer("admin-1", auth.PermissionManagePayments), nil, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("lets a learner read only their own record", func() {
			resp := do(http.MethodGet, "/api/v1/admin/payments/user-2", bearer("user-1"), nil, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))

			resp = do(http.MethodGet, "/api/v1/admin/payments/user-1", bearer("user-1"), nil, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Context("with a confirmation rate limit", func() {
		BeforeEach(func() {
			handlers.ConfirmLimiter = rate.NewLocalRateLimiter(0.001)
		})

		It("throttles repeated confirmations", func() {
			headers := map[string]string{"Content-Type": "application/json"}
			body := `{"external_payment_id":"PAY-1","status":"DENIED","amount":"6.00","currency":"EUR"}`

			first := do(http.MethodPost, "/api/v1/payment/confirm", bearer("user-1"), strings.NewReader(body), headers)
			second := do(http.MethodPost, "/api/v1/payment/confirm", bearer("user-1"), strings.NewReader(body), headers)

			Expect(first.StatusCode).NotTo(Equal(http.StatusTooManyRequests))
			Expect(second.StatusCode).To(Equal(http.StatusTooManyRequests))
		})
	})
})

type auditRecorderFunc func(*audit.Entry)

func (f auditRecorderFunc) Record(e *audit.Entry) { f(e) }
