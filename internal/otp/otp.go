// Package otp mints numeric one-time verification codes.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Length is the number of digits in a code.
const Length = 6

// Generator produces verification codes.
type Generator interface {
	Generate() (string, error)
}

// RandomGenerator draws codes uniformly from crypto/rand.
type RandomGenerator struct{}

// NewGenerator returns the default generator.
func NewGenerator() RandomGenerator {
	return RandomGenerator{}
}

var upper = big.NewInt(1_000_000)

// Generate returns a zero-padded six digit code.
func (RandomGenerator) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", Length, n.Int64()), nil
}
