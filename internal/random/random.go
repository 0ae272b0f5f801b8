package random

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	// secretSize is the number of random bytes behind a flow secret.
	// 15 bytes encode to a 20-character URL-safe string.
	secretSize = 15

	recoveryCodeGroups    = 4
	recoveryCodeGroupSize = 4
)

// recoveryCodeAlphabet deliberately omits O and I, which users confuse
// with 0 and 1. NormalizeRecoveryCode folds the ambiguous characters back.
const recoveryCodeAlphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// NewSecret returns a fresh unguessable flow secret, URL-safe encoded.
func NewSecret() (string, error) {
	var raw [secretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewVerificationCode returns a numeric code with the given number of digits.
func NewVerificationCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid verification code digits")
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

	code := b.String()
	if len(code) != digits {
		return "", fmt.Errorf("invalid verification code length")
	}
	return code, nil
}

// NewRecoveryCode returns a grouped recovery code like "X7PM-2Q9F-....".
func NewRecoveryCode() (string, error) {
	max := big.NewInt(int64(len(recoveryCodeAlphabet)))

	groups := make([]string, 0, recoveryCodeGroups)
	for g := 0; g < recoveryCodeGroups; g++ {
		var b strings.Builder
		b.Grow(recoveryCodeGroupSize)
		for i := 0; i < recoveryCodeGroupSize; i++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			b.WriteByte(recoveryCodeAlphabet[n.Int64()])
		}
		groups = append(groups, b.String())
	}

	return strings.Join(groups, "-"), nil
}

// NormalizeRecoveryCode canonicalizes a user-submitted recovery code:
// surrounding whitespace, inner spaces and dashes are dropped, the input is
// uppercased, and O/I are folded to 0/1.
func NormalizeRecoveryCode(code string) string {
	code = strings.TrimSpace(code)
	code = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-':
			return -1
		}
		return r
	}, code)
	code = strings.ToUpper(code)
	code = strings.ReplaceAll(code, "O", "0")
	code = strings.ReplaceAll(code, "I", "1")
	return code
}
