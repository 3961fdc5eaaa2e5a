package otp

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

const recoveryCodeBytes = 10

// NewCode returns a random numeric one-time code of the given length.
// Codes are strings, not numbers: leading zeros are significant and callers
// must compare them as strings.
func NewCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("otp digits must be between 6 and 10")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// NewRecoveryCode returns a random recovery code: 10 random bytes encoded
// as 16 base32 characters.
func NewRecoveryCode() (string, error) {
	raw := make([]byte, recoveryCodeBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}
