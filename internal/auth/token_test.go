package auth_test

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-gate/internal/auth"
)

var _ = Describe("JWTTokenGenerator", func() {
	const secret = "token-test-secret-0123456789abcdef"

	var (
		now       time.Time
		generator *auth.JWTTokenGenerator
	)

	BeforeEach(func() {
		now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		generator = auth.NewJWTTokenGenerator(secret, 15*time.Minute).
			WithClock(func() time.Time { return now })
	})

	It("round trips the user, session and permissions", func() {
		// Given
		token, err := generator.GenerateAccessToken("user-1", "session-1", []string{auth.PermissionUseRecovery})
		Expect(err).NotTo(HaveOccurred())

		// When
		claims, err := generator.ValidateToken(token)

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.UserID).To(Equal("user-1"))
		Expect(claims.SessionID).To(Equal("session-1"))
		Expect(claims.Permissions).To(ConsistOf(auth.PermissionUseRecovery))
		Expect(claims.Subject).To(Equal("user-1"))
	})

	It("starts a new session when none is given", func() {
		token, err := generator.GenerateAccessToken("user-1", "", nil)
		Expect(err).NotTo(HaveOccurred())

		claims, err := generator.ValidateToken(token)
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.SessionID).NotTo(BeEmpty())
	})

	It("requires a user", func() {
		_, err := generator.GenerateAccessToken("", "session-1", nil)
		Expect(err).To(HaveOccurred())
	})

	It("reports expired tokens", func() {
		// Given
		token, err := generator.GenerateAccessToken("user-1", "session-1", nil)
		Expect(err).NotTo(HaveOccurred())

		// When
		now = now.Add(16 * time.Minute)
		_, err = generator.ValidateToken(token)

		// Then
		Expect(err).To(MatchError(auth.ErrTokenExpired))
	})

	It("rejects tokens signed with another secret", func() {
		other := auth.NewJWTTokenGenerator("another-secret-0123456789abcdef", time.Minute)
		token, err := other.GenerateAccessToken("user-1", "session-1", nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = generator.ValidateToken(token)
		Expect(err).To(MatchError(auth.ErrInvalidToken))
	})

	It("rejects tokens without a session", func() {
		claims := jwt.MapClaims{
			"user_id": "user-1",
			"exp":     now.Add(time.Minute).Unix(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		Expect(err).NotTo(HaveOccurred())

		_, err = generator.ValidateToken(token)
		Expect(err).To(MatchError(auth.ErrInvalidToken))
	})

	It("rejects garbage", func() {
		_, err := generator.ValidateToken("not-a-token")
		Expect(err).To(MatchError(auth.ErrInvalidToken))
	})
})

var _ = Describe("SesskeyIssuer", func() {
	var issuer *auth.SesskeyIssuer

	BeforeEach(func() {
		issuer = auth.NewSesskeyIssuer("sesskey-test-secret")
	})

	It("issues a stable key per user and session", func() {
		key := issuer.Issue("user-1", "session-1")

		Expect(key).To(HaveLen(32))
		Expect(issuer.Issue("user-1", "session-1")).To(Equal(key))
		Expect(issuer.Verify("user-1", "session-1", key)).To(BeTrue())
	})

	DescribeTable("rejects keys that do not belong to the session",
		func(userID, sessionID string, keyFor func() string) {
			Expect(issuer.Verify(userID, sessionID, keyFor())).To(BeFalse())
		},
		Entry("another session", "user-1", "session-2", func() string { return issuer.Issue("user-1", "session-1") }),
		Entry("another user", "user-2", "session-1", func() string { return issuer.Issue("user-1", "session-1") }),
		Entry("another secret", "user-1", "session-1", func() string {
			return auth.NewSesskeyIssuer("other").Issue("user-1", "session-1")
		}),
		Entry("empty key", "user-1", "session-1", func() string { return "" }),
		Entry("truncated key", "user-1", "session-1", func() string { return issuer.Issue("user-1", "session-1")[:16] }),
		Entry("no session", "user-1", "", func() string { return issuer.Issue("user-1", "") }),
		Entry("separator moved into the user id", "a:b", "c", func() string { return issuer.Issue("a", "b:c") }),
		Entry("separator moved into the session id", "a", "b:c", func() string { return issuer.Issue("a:b", "c") }),
	)

	It("keeps ids that differ only in where a colon falls apart", func() {
		Expect(issuer.Issue("a:b", "c")).NotTo(Equal(issuer.Issue("a", "b:c")))
		Expect(issuer.Issue("ab", "c")).NotTo(Equal(issuer.Issue("a", "bc")))
	})
})
