package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// otpMax bounds the six-digit reset codes.
var otpMax = big.NewInt(1_000_000)

// NewOTP returns a random six-digit numeric code, zero padded.
func NewOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
