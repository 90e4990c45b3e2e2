package common

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// MakeRandNumericCode returns a uniformly random code with exactly the given
// number of digits (no leading zero), e.g. digits=4 yields "1000".."9999".
func MakeRandNumericCode(digits int) (string, error) {
	if digits < 1 {
		return "", fmt.Errorf("invalid code length: %d", digits)
	}

	low := big.NewInt(1)
	for i := 1; i < digits; i++ {
		low.Mul(low, big.NewInt(10))
	}
	// span = 9 * 10^(digits-1), codes in [low, 10*low)
	span := new(big.Int).Mul(low, big.NewInt(9))

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("rand error: %w", err)
	}

	return n.Add(n, low).String(), nil
}
