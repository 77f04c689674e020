package rest_test

import (
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/transport/rest"
)

var _ = Describe("FeatureProxy", func() {
	It("forwards to the upstream with the caller identity", func() {
		// Given
		var seen *http.Request
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = r
			_, _ = io.WriteString(w, "recovery page")
		}))
		DeferCleanup(upstream.Close)

		proxy, err := rest.NewFeatureProxy(upstream.URL+"/feature", rest.RecoveryPrefix, quietLogger())
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest(http.MethodGet, rest.RecoveryPrefix+"/questions?quiz=7", nil)
		req.Header.Set("Authorization", "Bearer secret-token")
		req.Header.Set(rest.HeaderForwardedUser, "spoofed")
		ctx := internal.ContextWithUserID(req.Context(), "user-1")
		ctx = internal.ContextWithSessionID(ctx, "session-1")
		rec := httptest.NewRecorder()

		// When
		proxy.ServeHTTP(rec, req.WithContext(ctx))

		// Then
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(Equal("recovery page"))
		Expect(seen.URL.Path).To(Equal("/feature/questions"))
		Expect(seen.URL.RawQuery).To(Equal("quiz=7"))
		Expect(seen.Header.Get(rest.HeaderForwardedUser)).To(Equal("user-1"))
		Expect(seen.Header.Get(rest.HeaderForwardedSession)).To(Equal("session-1"))
		Expect(seen.Header.Get("Authorization")).To(BeEmpty())
	})

	It("answers 502 when the upstream is down", func() {
		proxy, err := rest.NewFeatureProxy("http://127.0.0.1:1", rest.RecoveryPrefix, quietLogger())
		Expect(err).NotTo(HaveOccurred())

		rec := httptest.NewRecorder()
		proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, rest.RecoveryPrefix, nil))

		Expect(rec.Code).To(Equal(http.StatusBadGateway))
	})

	It("rejects an upstream without scheme or host", func() {
		_, err := rest.NewFeatureProxy("feature.local", rest.RecoveryPrefix, quietLogger())
		Expect(err).To(HaveOccurred())
	})
})
