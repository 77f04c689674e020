package cmd

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-gate/internal/auth"
)

var _ = Describe("Commands", func() {
	It("registers every operator command on the root", func() {
		// Given
		var names []string

		// When
		for _, c := range rootCmd.Commands() {
			names = append(names, c.Name())
		}

		// Then
		Expect(names).To(ContainElements("server", "migrate", "seed", "event", "worker", "payment", "token"))
	})

	It("exposes status under migrate and expiry under worker", func() {
		// Given
		sub, _, err := rootCmd.Find([]string{"migrate", "status"})

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Name()).To(Equal("status"))

		sub, _, err = rootCmd.Find([]string{"worker", "expiry"})
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Name()).To(Equal("expiry"))
	})
})

var _ = Describe("issueToken", func() {
	var tokens *auth.JWTTokenGenerator

	BeforeEach(func() {
		tokens = auth.NewJWTTokenGenerator("0123456789abcdef0123456789abcdef", time.Hour)
	})

	It("splits and trims the permission list", func() {
		// When
		claims, token, err := issueToken(tokens, "user-1", "sess-1", " use_recovery, ,manage_payments")

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(token).NotTo(BeEmpty())
		Expect(claims.UserID).To(Equal("user-1"))
		Expect(claims.SessionID).To(Equal("sess-1"))
		Expect(claims.Permissions).To(Equal([]string{"use_recovery", "manage_payments"}))
	})

	It("mints a session when none is given", func() {
		// When
		claims, _, err := issueToken(tokens, "user-1", "", "")

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.SessionID).NotTo(BeEmpty())
		Expect(claims.Permissions).To(BeEmpty())
	})

	It("refuses an empty user", func() {
		// When
		_, _, err := issueToken(tokens, "", "", "")

		// Then
		Expect(err).To(HaveOccurred())
	})
})
