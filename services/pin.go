package services

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
)

const pinDigits = 6

// PinGenerator produces the completion PIN given to the customer at booking time
type PinGenerator func() (string, error)

// RandomPin returns a uniformly random 6-digit PIN from crypto/rand.
func RandomPin() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate pin: %w", err)
	}
	return fmt.Sprintf("%0*d", pinDigits, n.Int64()), nil
}

// pinMatches compares in constant time so response timing leaks nothing about the PIN.
func pinMatches(expected, supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}

func validPinFormat(pin string) bool {
	if len(pin) != pinDigits {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
