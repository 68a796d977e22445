// Package totp implements the RFC 6238 time-based one-time password
// algorithm with the profile used by Google Authenticator and compatible
// apps: HMAC-SHA1, 6 digits, 30-second period.
//
// All functions are pure and safe for concurrent use; the only external
// inputs are a secret, a clock reading, and (for secret generation) the
// system CSPRNG.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// Digits is the number of decimal digits in a generated code.
	Digits = 6
	// Period is the length of one time step in seconds.
	Period = 30
	// SecretSize is the number of random bytes in a generated secret
	// (160 bits, the RFC 4226 recommendation).
	SecretSize = 20
	// DefaultWindow is the number of adjacent time steps accepted on
	// either side of the current one to absorb clock drift.
	DefaultWindow = 1
)

var (
	codeRegex   = regexp.MustCompile(`^\d{6}$`)
	secretRegex = regexp.MustCompile(`^[A-Z2-7]+=*$`)

	b32 = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// Result reports the outcome of a verification attempt. Delta is the time
// step offset the code matched at (0 for the current step) and is only
// meaningful when Valid is true; callers wanting replay protection can pin
// the last accepted step from it.
type Result struct {
	Valid bool
	Delta int
}

// ValidCodeFormat reports whether code is exactly six decimal digits.
// Callers use it to fail fast before loading any stored secret.
func ValidCodeFormat(code string) bool {
	return codeRegex.MatchString(code)
}

// GenerateSecret returns a new random shared secret as uppercase Base32
// without padding. A failure of the underlying random source is the only
// error case and must abort enrollment.
func GenerateSecret() (string, error) {
	buf := make([]byte, SecretSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandomSource, err)
	}
	return b32.EncodeToString(buf), nil
}

// EnrollmentURI builds the otpauth:// URI encoded into enrollment QR codes.
// Algorithm, digits and period are fixed to the interoperable defaults.
func EnrollmentURI(secret, issuer, account string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	if issuer == "" {
		return "", ErrMissingIssuer
	}
	if account == "" {
		return "", ErrMissingAccountName
	}
	if _, err := decodeSecret(secret); err != nil {
		return "", err
	}

	label := fmt.Sprintf("%s:%s", url.PathEscape(issuer), url.PathEscape(account))

	query := url.Values{}
	query.Set("secret", normalizeSecret(secret))
	query.Set("issuer", issuer)
	query.Set("algorithm", "SHA1")
	query.Set("digits", fmt.Sprintf("%d", Digits))
	query.Set("period", fmt.Sprintf("%d", Period))

	return fmt.Sprintf("otpauth://totp/%s?%s", label, query.Encode()), nil
}

// ComputeCode derives the 6-digit code for a given time step counter
// (RFC 4226 HOTP with the counter taken from RFC 6238). The result is a
// string so leading zeros survive.
func ComputeCode(secret string, counter uint64) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotp(key, counter), nil
}

// Verify checks a user-submitted code against the secret for the current
// time. See VerifyAt.
func Verify(code, secret string, window int) (Result, error) {
	return VerifyAt(code, secret, time.Now(), window)
}

// VerifyAt checks a code against the time step containing at, accepting
// codes up to window steps away on either side. The code format is
// validated before any cryptographic work; a malformed code never reaches
// the HMAC. Comparison is constant-time.
func VerifyAt(code, secret string, at time.Time, window int) (Result, error) {
	if !codeRegex.MatchString(code) {
		return Result{}, ErrInvalidFormat
	}

	key, err := decodeSecret(secret)
	if err != nil {
		return Result{}, err
	}

	if window < 0 {
		window = DefaultWindow
	}

	counter := at.Unix() / Period
	for delta := 0; delta <= window; delta++ {
		for _, d := range []int{delta, -delta} {
			candidate := hotp(key, uint64(counter+int64(d)))
			if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
				return Result{Valid: true, Delta: d}, nil
			}
			if delta == 0 {
				break
			}
		}
	}

	return Result{}, nil
}

func normalizeSecret(secret string) string {
	return strings.TrimRight(strings.ToUpper(strings.TrimSpace(secret)), "=")
}

func decodeSecret(secret string) ([]byte, error) {
	cleaned := normalizeSecret(secret)
	if cleaned == "" || !secretRegex.MatchString(cleaned) {
		return nil, ErrInvalidSecret
	}
	key, err := b32.DecodeString(cleaned)
	if err != nil {
		return nil, ErrInvalidSecret
	}
	return key, nil
}

// hotp is the RFC 4226 core: 8-byte big-endian counter, HMAC-SHA1,
// dynamic truncation to a 31-bit integer, reduced mod 10^6.
func hotp(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	digest := mac.Sum(nil)

	offset := digest[len(digest)-1] & 0x0F
	value := (uint32(digest[offset]&0x7F) << 24) |
		(uint32(digest[offset+1]) << 16) |
		(uint32(digest[offset+2]) << 8) |
		uint32(digest[offset+3])

	return fmt.Sprintf("%06d", value%1_000_000)
}
