package payment_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-gate/internal/core/events"
	"github.com/frahmantamala/payment-gate/internal/payment"
)

var _ = Describe("EventHandler", func() {
	var (
		ctx     context.Context
		handler *payment.EventHandler
	)

	BeforeEach(func() {
		ctx = context.Background()
		handler = payment.NewEventHandler(quietLogger())
	})

	It("handles each payment event type", func() {
		amount := decimal.RequireFromString("6.00")

		Expect(handler.HandlePaymentCompleted(ctx, events.NewPaymentCompletedEvent("user-1", "PAY-1", amount, "EUR"))).To(Succeed())
		Expect(handler.HandlePaymentFailed(ctx, events.NewPaymentFailedEvent("user-1", "PAY-1", amount, "EUR", "DECLINED"))).To(Succeed())
		Expect(handler.HandleEntitlementExpired(ctx, events.NewEntitlementExpiredEvent("user-1", "PAY-1", time.Now()))).To(Succeed())
	})

	It("rejects events of the wrong type", func() {
		expired := events.NewEntitlementExpiredEvent("user-1", "PAY-1", time.Now())

		Expect(handler.HandlePaymentCompleted(ctx, expired)).NotTo(Succeed())
		Expect(handler.HandlePaymentFailed(ctx, expired)).NotTo(Succeed())
		Expect(handler.HandleEntitlementExpired(ctx, events.NewPaymentCompletedEvent("user-1", "PAY-1", decimal.Zero, "EUR"))).NotTo(Succeed())
	})

	It("receives events published on the bus", func() {
		// Given
		bus := events.NewEventBus(quietLogger())
		handler.RegisterEventHandlers(bus)

		// When
		err := bus.PublishSync(ctx, events.NewPaymentCompletedEvent("user-1", "PAY-1", decimal.RequireFromString("6.00"), "EUR"))

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(bus.Wait(ctx)).To(Succeed())
	})
})
