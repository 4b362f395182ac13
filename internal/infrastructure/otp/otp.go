package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const codeDigits = 6

// Codec generates delivery codes and verifies presented ones against the
// stored hash. Only the bcrypt hash is persisted; the cleartext code exists
// just long enough to be sent to the buyer.
type Codec struct {
	cost int
}

func New() *Codec {
	return &Codec{cost: bcrypt.DefaultCost}
}

// Generate returns a fresh 6-digit code and its hash.
func (c *Codec) Generate() (code string, hash string, err error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", "", fmt.Errorf("otp generate: %w", err)
	}
	code = fmt.Sprintf("%0*d", codeDigits, n)
	h, err := bcrypt.GenerateFromPassword([]byte(code), c.cost)
	if err != nil {
		return "", "", fmt.Errorf("otp hash: %w", err)
	}
	return code, string(h), nil
}

// Verify reports whether the presented code matches the stored hash.
func (c *Codec) Verify(hash, presented string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)) == nil
}
