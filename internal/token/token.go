// Package token implements the admission credential protocol: time-windowed
// rotating subject tokens, printable static stall tokens, and verification of
// both plus the legacy shapes still in circulation.
package token

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Format version discriminators, written by the issuer and dispatched on by
// the verifier. Tokens minted before the discriminator existed carry none and
// are defaulted in defaultVersion.
const (
	VerRotating      = "r1"
	VerLegacyID      = "lid"
	VerLegacyCompact = "lc"
)

// StaticPrefix marks a printed stall credential. Static tokens are a plain
// delimited string with no cryptographic check: stall codes are low-value,
// re-printable and location-bound, so they trade rotation security for
// durability under printing and sun fade.
const StaticPrefix = "STALL"

// StaticDelim separates static token fields.
const StaticDelim = "_"

// MaxStaticLen bounds a static token so the rendered code stays scannable at
// high error correction.
const MaxStaticLen = 96

// Kind tells which credential class a verified token belongs to.
type Kind string

const (
	KindStudent Kind = "student"
	KindStall   Kind = "stall"
)

// Config carries the protocol policy constants. The secret is immutable after
// construction; tests supply distinct secrets per case.
type Config struct {
	Secret           string
	RotationInterval time.Duration
	GraceWindows     int64
	TagLen           int
	LegacyIDTagLen   int
	CompactTagLen    int
}

// Claims is the signed envelope payload shared by all JWT-carried formats.
// Which fields are populated depends on the format version.
type Claims struct {
	Ver string `json:"ver,omitempty"`
	Win int64  `json:"win,omitempty"`
	Tag string `json:"tag,omitempty"`
	UID int64  `json:"uid,omitempty"`
	Chk string `json:"chk,omitempty"`
	C   string `json:"c,omitempty"`
	jwt.RegisteredClaims
}

// rotatingTagInput is the integrity-tag preimage for rotating tokens.
func rotatingTagInput(subject string, win int64) string {
	return subject + "|" + strconv.FormatInt(win, 10)
}

// legacyIDTagInput is the checksum preimage used by the legacy-with-id shape.
// Different composition and truncation than the current scheme, kept for
// tokens printed under the old schema.
func legacyIDTagInput(uid int64, subject string) string {
	return strconv.FormatInt(uid, 10) + ":" + subject
}
