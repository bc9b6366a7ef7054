package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// OTPLength is the number of digits in a generated one-time code.
const OTPLength = 6

// GenerateOTP returns a cryptographically random numeric one-time code of
// OTPLength digits. Leading zeros are preserved, so "012345" is a valid code.
func GenerateOTP() (string, error) {
	var b strings.Builder
	b.Grow(OTPLength)
	for range OTPLength {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate one-time code: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
