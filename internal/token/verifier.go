package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"admission/internal/errs"
)

// Verdict is the outcome of verifying a scanned credential. On success only
// the subject natural key is exposed, never an internal storage id.
type Verdict struct {
	Valid   bool
	Kind    Kind
	Subject string
	Reason  string
}

// Machine-readable failure reasons. Every anticipated failure gets one; the
// verifier never produces an "unknown error".
const (
	ReasonMalformed = "malformed"
	ReasonSignature = "signature"
	ReasonExpired   = "expired"
	ReasonTampered  = "tampered"
)

// Verifier checks scanned credentials against the shared secret and the
// current window. Stateless; safe for concurrent use.
type Verifier struct {
	cfg    Config
	signer *Signer
	clock  Clock
}

// NewVerifier builds a verifier with an injected clock (nil means time.Now).
func NewVerifier(cfg Config, clock Clock) *Verifier {
	if clock == nil {
		clock = time.Now
	}
	return &Verifier{cfg: cfg, signer: NewSigner([]byte(cfg.Secret)), clock: clock}
}

// Verify parses and checks a scanned credential of any supported format.
// Static stall tokens are recognized by prefix before the signed-envelope
// path; everything else must be a valid signed envelope.
func (v *Verifier) Verify(raw string) (Verdict, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return invalid(ReasonMalformed), errs.ErrMalformedToken
	}
	if strings.HasPrefix(raw, StaticPrefix+StaticDelim) {
		return v.verifyStatic(raw)
	}

	claims, err := v.unwrap(raw)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return invalid(ReasonExpired), errs.ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return invalid(ReasonSignature), errs.ErrTamperedToken
		default:
			return invalid(ReasonMalformed), errs.ErrMalformedToken
		}
	}

	switch defaultVersion(claims) {
	case VerRotating:
		return v.verifyRotating(claims)
	case VerLegacyID:
		return v.verifyLegacyID(claims)
	case VerLegacyCompact:
		return v.verifyLegacyCompact(claims)
	default:
		return invalid(ReasonMalformed), errs.ErrMalformedToken
	}
}

// unwrap validates the envelope signature and its own expiry.
func (v *Verifier) unwrap(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(v.cfg.Secret), nil
	}, jwt.WithTimeFunc(func() time.Time { return v.clock() }))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

// defaultVersion resolves the format discriminator. The issuer always writes
// one; tokens minted before it existed are defaulted here, in one place,
// rather than sniffed field-by-field at each checksum site.
func defaultVersion(c *Claims) string {
	if c.Ver != "" {
		return c.Ver
	}
	if c.UID != 0 {
		return VerLegacyID
	}
	if c.C != "" {
		return VerLegacyCompact
	}
	return ""
}

func (v *Verifier) verifyRotating(c *Claims) (Verdict, error) {
	if c.Subject == "" || c.Tag == "" {
		return invalid(ReasonMalformed), errs.ErrMalformedToken
	}
	if !v.signer.VerifyTag(rotatingTagInput(c.Subject, c.Win), c.Tag, v.cfg.TagLen) {
		return invalid(ReasonTampered), errs.ErrTamperedToken
	}
	delta := Window(v.clock(), v.cfg.RotationInterval) - c.Win
	if delta < 0 || delta > v.cfg.GraceWindows {
		return invalid(ReasonExpired), errs.ErrExpiredToken
	}
	return Verdict{Valid: true, Kind: KindStudent, Subject: c.Subject}, nil
}

// verifyLegacyID accepts the old non-rotating shape carrying an internal id
// alongside the natural key, with its shorter checksum. No window check; the
// envelope expiry is the only freshness bound these tokens ever had.
func (v *Verifier) verifyLegacyID(c *Claims) (Verdict, error) {
	if c.Subject == "" || c.Chk == "" || c.UID == 0 {
		return invalid(ReasonMalformed), errs.ErrMalformedToken
	}
	if !v.signer.VerifyTag(legacyIDTagInput(c.UID, c.Subject), c.Chk, v.cfg.LegacyIDTagLen) {
		return invalid(ReasonTampered), errs.ErrTamperedToken
	}
	return Verdict{Valid: true, Kind: KindStudent, Subject: c.Subject}, nil
}

// verifyLegacyCompact accepts the ultra-compact shape: a single claim holding
// "<natural key>.<checksum>" with the shortest truncation.
func (v *Verifier) verifyLegacyCompact(c *Claims) (Verdict, error) {
	idx := strings.LastIndex(c.C, ".")
	if idx <= 0 || idx == len(c.C)-1 {
		return invalid(ReasonMalformed), errs.ErrMalformedToken
	}
	subject, chk := c.C[:idx], c.C[idx+1:]
	if !v.signer.VerifyTag(subject, chk, v.cfg.CompactTagLen) {
		return invalid(ReasonTampered), errs.ErrTamperedToken
	}
	return Verdict{Valid: true, Kind: KindStudent, Subject: subject}, nil
}

// verifyStatic recovers the stall key from a printed credential. A prefix and
// delimiter check only; the trailing timestamp and random suffix are ignored.
func (v *Verifier) verifyStatic(raw string) (Verdict, error) {
	if len(raw) > MaxStaticLen {
		return invalid(ReasonMalformed), errs.ErrMalformedToken
	}
	parts := strings.Split(raw, StaticDelim)
	if len(parts) < 3 || parts[1] == "" {
		return invalid(ReasonMalformed), errs.ErrMalformedToken
	}
	return Verdict{Valid: true, Kind: KindStall, Subject: parts[1]}, nil
}

// SecondsUntilRotation reports the remaining seconds in the current window.
func (v *Verifier) SecondsUntilRotation() int64 {
	return SecondsUntilRotation(v.clock(), v.cfg.RotationInterval)
}

func invalid(reason string) Verdict {
	return Verdict{Valid: false, Reason: reason}
}
