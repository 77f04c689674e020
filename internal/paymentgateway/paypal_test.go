package paymentgateway_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-gate/internal"
	gatewaytypes "github.com/frahmantamala/payment-gate/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/payment-gate/internal/paymentgateway"
)

var _ = Describe("PayPalVerifier", func() {
	var (
		server      *httptest.Server
		verifier    *paymentgateway.PayPalVerifier
		orderStatus string
		orderValue  string
		orderCcy    string
		orderCalls  int
		failOrders  bool
	)

	BeforeEach(func() {
		orderStatus = "COMPLETED"
		orderValue = "6.00"
		orderCcy = "EUR"
		orderCalls = 0
		failOrders = false

		mux := http.NewServeMux()
		mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "test-token",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		})
		mux.HandleFunc("/v2/checkout/orders/", func(w http.ResponseWriter, r *http.Request) {
			orderCalls++
			if failOrders {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"name":"INTERNAL_SERVER_ERROR","message":"boom"}`))
				return
			}
			id := strings.TrimPrefix(r.URL.Path, "/v2/checkout/orders/")
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     id,
				"status": orderStatus,
				"purchase_units": []map[string]interface{}{
					{"amount": map[string]string{"currency_code": orderCcy, "value": orderValue}},
				},
			})
		})
		server = httptest.NewServer(mux)

		var err error
		verifier, err = paymentgateway.NewPayPalVerifier(paymentgateway.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			APIBase:      server.URL,
		}, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	request := func() gatewaytypes.VerificationRequest {
		return gatewaytypes.VerificationRequest{
			OrderID:  "ORDER-1",
			Status:   "completed",
			Amount:   decimal.RequireFromString("6"),
			Currency: "eur",
		}
	}

	Describe("GetOrder", func() {
		It("flattens the first purchase unit", func() {
			// When
			details, err := verifier.GetOrder(context.Background(), "ORDER-1")

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(details.OrderID).To(Equal("ORDER-1"))
			Expect(details.Status).To(Equal(gatewaytypes.OrderStatusCompleted))
			Expect(details.Amount.Equal(decimal.RequireFromString("6.00"))).To(BeTrue())
			Expect(details.Currency).To(Equal("EUR"))
		})
	})

	Describe("VerifyOrder", func() {
		It("accepts a matching order", func() {
			// When
			err := verifier.VerifyOrder(context.Background(), request())

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(orderCalls).To(Equal(1))
		})

		It("rejects an amount mismatch", func() {
			// Given
			orderValue = "1.00"

			// When
			err := verifier.VerifyOrder(context.Background(), request())

			// Then
			Expect(err).To(MatchError(internal.ErrProcessorMismatch))
		})

		It("rejects a currency mismatch", func() {
			// Given
			orderCcy = "USD"

			// When
			err := verifier.VerifyOrder(context.Background(), request())

			// Then
			Expect(err).To(MatchError(internal.ErrProcessorMismatch))
		})

		It("rejects a status mismatch", func() {
			// Given
			orderStatus = "APPROVED"

			// When
			err := verifier.VerifyOrder(context.Background(), request())

			// Then
			Expect(err).To(MatchError(internal.ErrProcessorMismatch))
		})

		It("rejects an incomplete request without calling the processor", func() {
			// Given
			req := request()
			req.OrderID = " "

			// When
			err := verifier.VerifyOrder(context.Background(), req)

			// Then
			Expect(err).To(MatchError(internal.ErrProcessorMismatch))
			Expect(orderCalls).To(Equal(0))
		})

		It("reports a processor outage as unavailable", func() {
			// Given
			failOrders = true

			// When
			err := verifier.VerifyOrder(context.Background(), request())

			// Then
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})
	})
})
