package password

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Legacy verifies bcrypt hashes imported from the previous account store.
// It never produces new hashes.
type Legacy struct{}

// Verify reports whether password matches a bcrypt hash.
func (Legacy) Verify(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch err {
	case nil:
		return true, nil
	case bcrypt.ErrMismatchedHashAndPassword:
		return false, nil
	default:
		return false, ErrMalformedHash
	}
}

func isBcryptHash(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}
