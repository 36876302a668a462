package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const BcryptCost = 14

// placeholderHash is compared against when the submitted account does not
// exist, so an unknown email costs the same bcrypt work as a wrong password.
var placeholderHash = mustHash("gatekeeper-placeholder", bcrypt.MinCost)

func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, BcryptCost)
}

func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// BurnComparison performs a throwaway bcrypt comparison.
func BurnComparison(password string) {
	_ = bcrypt.CompareHashAndPassword(placeholderHash, []byte(password))
}

func mustHash(password string, cost int) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		panic(err)
	}
	return h
}
