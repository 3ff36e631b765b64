package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const rawSize = 32

// ErrMalformed is returned by Validate for values that cannot be tokens.
var ErrMalformed = errors.New("malformed refresh token")

// Generate returns a new raw token and its digest.
func Generate() (raw string, hash string, err error) {
	var buf [rawSize]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", "", err
	}

	raw = base64.RawURLEncoding.EncodeToString(buf[:])
	return raw, Hash(raw), nil
}

// Hash returns the hex SHA-256 digest of raw.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Validate rejects values that Generate could not have produced. It runs
// before any store lookup.
func Validate(raw string) error {
	if len(raw) != base64.RawURLEncoding.EncodedLen(rawSize) {
		return ErrMalformed
	}
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil || len(decoded) != rawSize {
		return ErrMalformed
	}
	return nil
}
