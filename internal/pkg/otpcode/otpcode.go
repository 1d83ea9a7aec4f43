package otpcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Digits is the length of generated codes.
const Digits = 6

// New returns a uniformly random numeric code of Digits digits, zero padded.
func New() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp code: %w", err)
	}
	return fmt.Sprintf("%0*d", Digits, n.Int64()), nil
}
