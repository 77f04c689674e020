package payment_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-gate/internal/payment"
)

var _ = Describe("DisplayPrice", func() {
	It("renders the amount with two decimals", func() {
		Expect(payment.DisplayPrice(decimal.RequireFromString("6"), "EUR")).To(ContainSubstring("6.00"))
	})

	It("falls back to the code for unknown currencies", func() {
		Expect(payment.DisplayPrice(decimal.RequireFromString("6"), "zzz")).To(Equal("6.00 ZZZ"))
	})
})
