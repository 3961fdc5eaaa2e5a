// Package otp implements the one-time-code primitives: TOTP generation and
// verification, numeric challenge codes, and recovery codes.
//
// TOTP follows RFC 6238 over HMAC-SHA1 with a 20-byte secret, 30-second
// period, and 6 digits by default. Verification accepts one step of clock
// skew in either direction and compares codes in constant time.
package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const (
	// SecretBytes is the raw TOTP secret length.
	SecretBytes = 20
	// DefaultPeriod is the TOTP time-step duration.
	DefaultPeriod = 30 * time.Second
	// DefaultDigits is the TOTP code length.
	DefaultDigits = 6
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a fresh 20-byte TOTP secret and its base32
// encoding for provisioning.
func GenerateSecret() ([]byte, string, error) {
	raw := make([]byte, SecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	return raw, b32.EncodeToString(raw), nil
}

// DecodeSecret reverses the base32 encoding produced by GenerateSecret.
func DecodeSecret(encoded string) ([]byte, error) {
	raw, err := b32.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) != SecretBytes {
		return nil, errors.New("invalid totp secret length")
	}
	return raw, nil
}

// KeyURI builds the otpauth:// provisioning URI consumed by authenticator
// apps.
func KeyURI(issuer, account, secretBase32 string, digits int, period time.Duration) string {
	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", strconv.Itoa(digits))
	v.Set("period", strconv.Itoa(int(period/time.Second)))
	return "otpauth://totp/" + url.PathEscape(issuer+":"+account) + "?" + v.Encode()
}

// Code computes the TOTP code for the given instant.
func Code(secret []byte, period time.Duration, digits int, at time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("empty totp secret")
	}
	counter := at.Unix() / int64(period/time.Second)
	return hotp(secret, counter, digits), nil
}

// Verify checks a user-supplied code against the secret at the given
// instant, accepting one step of skew either way. The supplied code is
// compared as a string so leading zeros matter, and the comparison is
// constant-time per candidate step.
func Verify(secret []byte, period time.Duration, digits int, code string, now time.Time) bool {
	if len(secret) == 0 || len(code) != digits || !isNumeric(code) {
		return false
	}

	baseCounter := now.Unix() / int64(period/time.Second)
	for step := int64(-1); step <= 1; step++ {
		counter := baseCounter + step
		if counter < 0 {
			continue
		}
		generated := hotp(secret, counter, digits)
		if subtle.ConstantTimeCompare([]byte(generated), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

func hotp(secret []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
