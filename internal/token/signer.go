package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer produces short keyed integrity tags. Only holders of the shared
// secret can produce a valid tag for arbitrary input. Stateless and safe for
// concurrent use.
type Signer struct {
	secret []byte
}

// NewSigner wraps the process-wide shared secret. The secret is copied; the
// caller's slice may be reused.
func NewSigner(secret []byte) *Signer {
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Signer{secret: s}
}

// Tag computes an HMAC-SHA256 over msg truncated to n bytes, hex-encoded.
// Truncation trades forgery resistance for a denser printed code; n is a
// configuration constant, not a per-call decision.
func (s *Signer) Tag(msg string, n int) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(msg))
	sum := mac.Sum(nil)
	if n <= 0 || n > len(sum) {
		n = len(sum)
	}
	return hex.EncodeToString(sum[:n])
}

// VerifyTag reports whether got is the valid n-byte tag for msg, comparing in
// constant time.
func (s *Signer) VerifyTag(msg, got string, n int) bool {
	want := s.Tag(msg, n)
	return hmac.Equal([]byte(want), []byte(got))
}
