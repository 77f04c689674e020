package auth_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/auth"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var _ = Describe("HTTP guards", func() {
	var (
		tokens   *auth.JWTTokenGenerator
		sesskeys *auth.SesskeyIssuer
		handler  *auth.Handler
		rbac     *auth.RBACAuthorization
		router   chi.Router
	)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(internal.UserIDFromContext(r.Context())))
	})

	bearer := func(userID string, perms ...string) string {
		token, err := tokens.GenerateAccessToken(userID, "session-"+userID, perms)
		Expect(err).NotTo(HaveOccurred())
		return "Bearer " + token
	}

	serve := func(method, path, authorization string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		tokens = auth.NewJWTTokenGenerator("middleware-test-secret-0123456789", time.Minute)
		sesskeys = auth.NewSesskeyIssuer("middleware-test-sesskey")
		handler = auth.NewHandler(tokens, sesskeys, quietLogger())
		rbac = auth.NewRBACAuthorization(auth.NewPermissionChecker(), quietLogger())
		abac := &auth.ABACPolicy{}

		router = chi.NewRouter()
		router.Group(func(r chi.Router) {
			r.Use(handler.AuthMiddleware)
			r.Get("/session", handler.Session)
			r.With(rbac.RequireUseRecovery()).Get("/recovery", ok)
			r.With(rbac.RequireManagePayments()).Get("/admin", ok)
			r.With(rbac.Middleware(auth.PermissionUseRecovery)).Get("/generic", ok)
			r.With(auth.RequireCanViewPayment(abac)).Get("/payments/{userID}", ok)
		})
	})

	Describe("AuthMiddleware", func() {
		It("puts the user on the request context", func() {
			rec := serve(http.MethodGet, "/recovery", bearer("user-1", auth.PermissionUseRecovery))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("user-1"))
		})

		It("accepts a lowercase scheme", func() {
			token, err := tokens.GenerateAccessToken("user-1", "session-1", []string{auth.PermissionUseRecovery})
			Expect(err).NotTo(HaveOccurred())

			rec := serve(http.MethodGet, "/recovery", "bearer "+token)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		DescribeTable("rejects requests without a valid token",
			func(authorization string, code internal.ErrorCode) {
				rec := serve(http.MethodGet, "/recovery", authorization)

				Expect(rec.Code).To(Equal(http.StatusUnauthorized))
				var body internal.Response
				Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
				Expect(body.Error.Code).To(Equal(code))
			},
			Entry("missing header", "", internal.ErrCodeAuthenticationFailed),
			Entry("wrong scheme", "Basic dXNlcjpwYXNz", internal.ErrCodeAuthenticationFailed),
			Entry("garbage token", "Bearer nope", internal.ErrCodeInvalidToken),
		)

		It("reports expired tokens", func() {
			past := time.Now().Add(-time.Hour)
			expired := auth.NewJWTTokenGenerator("middleware-test-secret-0123456789", time.Minute).
				WithClock(func() time.Time { return past })
			token, err := expired.GenerateAccessToken("user-1", "session-1", nil)
			Expect(err).NotTo(HaveOccurred())

			rec := serve(http.MethodGet, "/recovery", "Bearer "+token)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			var body internal.Response
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Error.Code).To(Equal(internal.ErrCodeTokenExpired))
		})
	})

	Describe("Session", func() {
		It("returns the sesskey bound to the login session", func() {
			rec := serve(http.MethodGet, "/session", bearer("user-1", auth.PermissionUseRecovery))

			Expect(rec.Code).To(Equal(http.StatusOK))
			var resp auth.SessionResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.UserID).To(Equal("user-1"))
			Expect(resp.SessionID).To(Equal("session-user-1"))
			Expect(sesskeys.Verify("user-1", "session-user-1", resp.Sesskey)).To(BeTrue())
		})
	})

	Describe("RBAC", func() {
		DescribeTable("checks the required capability",
			func(path string, perms []string, expected int) {
				rec := serve(http.MethodGet, path, bearer("user-1", perms...))
				Expect(rec.Code).To(Equal(expected))
			},
			Entry("recovery with capability", "/recovery", []string{auth.PermissionUseRecovery}, http.StatusOK),
			Entry("recovery without capability", "/recovery", []string{}, http.StatusForbidden),
			Entry("recovery as admin", "/recovery", []string{auth.PermissionAdmin}, http.StatusOK),
			Entry("admin route for a learner", "/admin", []string{auth.PermissionUseRecovery}, http.StatusForbidden),
			Entry("admin route for a manager", "/admin", []string{auth.PermissionManagePayments}, http.StatusOK),
			Entry("generic permission", "/generic", []string{auth.PermissionUseRecovery}, http.StatusOK),
		)

		It("requires authentication when used alone", func() {
			guarded := rbac.RequireUseRecovery()(ok)
			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("ABAC", func() {
		DescribeTable("lets owners and managers view a payment record",
			func(userID string, perms []string, owner string, expected int) {
				rec := serve(http.MethodGet, "/payments/"+owner, bearer(userID, perms...))
				Expect(rec.Code).To(Equal(expected))
			},
			Entry("owner", "user-1", []string{}, "user-1", http.StatusOK),
			Entry("another learner", "user-2", []string{}, "user-1", http.StatusForbidden),
			Entry("manager", "user-2", []string{auth.PermissionManagePayments}, "user-1", http.StatusOK),
			Entry("admin", "user-2", []string{auth.PermissionAdmin}, "user-1", http.StatusOK),
		)

		It("only lets owners read", func() {
			policy := &auth.ABACPolicy{}
			attrs := map[string]string{"user_id": "user-1"}

			Expect(policy.Allow(attrs, "user-1", auth.ActionRead)).To(BeTrue())
			Expect(policy.Allow(attrs, "user-1", auth.ActionManage)).To(BeFalse())
		})
	})
})
