package accounts

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const tokenKeyBytes = 20

var errEmptyPassword = errors.New("accounts: password must not be empty")

// GenerateTokenKey returns a 40 character hex key from a cryptographically secure source.
func GenerateTokenKey() (string, error) {
	buffer := make([]byte, tokenKeyBytes)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer), nil
}

// UnusablePassword returns a password hash that never matches any password.
func UnusablePassword() (string, error) {
	suffix, err := GenerateTokenKey()
	if err != nil {
		return "", err
	}
	return unusablePasswordPrefix + suffix, nil
}

// HashPassword derives a bcrypt hash for password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errEmptyPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword reports whether password matches the user's stored hash.
func CheckPassword(user User, password string) bool {
	if !user.HasUsablePassword() {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}
