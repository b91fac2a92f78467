package token

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer mints admission credentials. Stateless; safe for concurrent use.
type Issuer struct {
	cfg    Config
	signer *Signer
	clock  Clock
}

// NewIssuer builds an issuer with an injected clock (nil means time.Now).
func NewIssuer(cfg Config, clock Clock) *Issuer {
	if clock == nil {
		clock = time.Now
	}
	return &Issuer{cfg: cfg, signer: NewSigner([]byte(cfg.Secret)), clock: clock}
}

// IssueRotating mints a rotating subject token for the current window. The
// envelope self-expires at the end of the grace span even if the window check
// is bypassed. Two calls in the same window verify identically but need not
// be byte-identical.
func (i *Issuer) IssueRotating(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("subject key required")
	}
	now := i.clock()
	win := Window(now, i.cfg.RotationInterval)
	exp := WindowStart(win+i.cfg.GraceWindows+1, i.cfg.RotationInterval)

	claims := Claims{
		Ver: VerRotating,
		Win: win,
		Tag: i.signer.Tag(rotatingTagInput(subject, win), i.cfg.TagLen),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.Secret))
}

// IssueStatic mints a printable stall credential: prefix, stall key, then a
// timestamp plus random suffix baked in once at creation. Never rotates,
// never expires.
func (i *Issuer) IssueStatic(stallKey string) (string, error) {
	if stallKey == "" {
		return "", errors.New("stall key required")
	}
	if strings.Contains(stallKey, StaticDelim) {
		return "", errors.New("stall key must not contain " + StaticDelim)
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	tok := StaticPrefix + StaticDelim + stallKey + StaticDelim +
		strconv.FormatInt(i.clock().Unix(), 10) + StaticDelim + suffix
	if len(tok) > MaxStaticLen {
		return "", errors.New("stall key too long for a printable credential")
	}
	return tok, nil
}

// SecondsUntilRotation reports the remaining seconds in the current window.
func (i *Issuer) SecondsUntilRotation() int64 {
	return SecondsUntilRotation(i.clock(), i.cfg.RotationInterval)
}
