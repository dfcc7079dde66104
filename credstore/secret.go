package credstore

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// HashSecret returns the bcrypt hash of secret. A cost of 0 uses
// bcrypt.DefaultCost.
func HashSecret(secret string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// IsHashed reports whether stored looks like a bcrypt hash rather than a
// plaintext secret from a legacy user file.
func IsHashed(stored string) bool {
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(stored, p) {
			return true
		}
	}
	return false
}

// VerifySecret reports whether secret matches stored. A bcrypt hash is
// compared with bcrypt; any other value is a legacy plaintext secret and is
// compared in constant time. A mismatch is not an error; a malformed hash is.
func VerifySecret(stored, secret string) (bool, error) {
	if !IsHashed(stored) {
		return subtle.ConstantTimeCompare([]byte(stored), []byte(secret)) == 1, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}
