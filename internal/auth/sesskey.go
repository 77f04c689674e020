package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

const sesskeyLength = 32

// SesskeyIssuer derives the per-session anti-forgery key that state-changing
// requests must echo back. The key is bound to both the user and the login
// session, so a key lifted from another session is useless.
type SesskeyIssuer struct {
	secret []byte
}

func NewSesskeyIssuer(secret string) *SesskeyIssuer {
	return &SesskeyIssuer{secret: []byte(secret)}
}

// Issue derives the key. Each part is length-prefixed so that no two
// (user, session) pairs feed the same bytes to the MAC.
func (s *SesskeyIssuer) Issue(userID, sessionID string) string {
	mac := hmac.New(sha256.New, s.secret)
	for _, part := range []string{userID, sessionID} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(part)))
		mac.Write(n[:])
		mac.Write([]byte(part))
	}
	return hex.EncodeToString(mac.Sum(nil))[:sesskeyLength]
}

// Verify compares in constant time.
func (s *SesskeyIssuer) Verify(userID, sessionID, key string) bool {
	if userID == "" || sessionID == "" || len(key) != sesskeyLength {
		return false
	}
	return hmac.Equal([]byte(s.Issue(userID, sessionID)), []byte(key))
}
