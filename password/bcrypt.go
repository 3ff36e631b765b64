package password

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func isBcrypt(record string) bool {
	return strings.HasPrefix(record, "$2a$") ||
		strings.HasPrefix(record, "$2b$") ||
		strings.HasPrefix(record, "$2y$")
}

func verifyBcrypt(password, record string) (bool, error) {
	// Cost is read from the record by bcrypt itself.
	if _, err := bcrypt.Cost([]byte(record)); err != nil {
		return false, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	err := bcrypt.CompareHashAndPassword([]byte(record), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
}
