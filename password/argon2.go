package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

var (
	// ErrWeakInput is returned by Hash for an empty password.
	ErrWeakInput = errors.New("weak input")
	// ErrCorruptRecord is returned when a stored hash record cannot be parsed.
	ErrCorruptRecord = errors.New("corrupt hash record")
)

// Config holds the argon2id cost parameters used for new hashes.
type Config struct {
	Memory       uint32
	Time         uint32
	Parallelism  uint8
	SaltLength   uint32
	KeyLength    uint32
	AcceptBcrypt bool
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KiB", minMemoryKB)
	case c.Time < minTimeCost:
		return fmt.Errorf("password time must be >= %d", minTimeCost)
	case c.Parallelism < minParallelism:
		return fmt.Errorf("password parallelism must be >= %d", minParallelism)
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	}
	return nil
}

// cost is what a record needs, besides its salt, to be re-derived.
type cost struct {
	memory     uint32
	iterations uint32
	threads    uint8
	keyLength  uint32
}

func (c cost) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, c.iterations, c.memory, c.threads, c.keyLength)
}

// below reports whether c is cheaper than target on any axis or derives a
// different key length.
func (c cost) below(target cost) bool {
	return c.memory < target.memory ||
		c.iterations < target.iterations ||
		c.threads < target.threads ||
		c.keyLength != target.keyLength
}

type phcRecord struct {
	cost
	salt []byte
	key  []byte
}

func (r phcRecord) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		r.memory, r.iterations, r.threads,
		base64.StdEncoding.EncodeToString(r.salt),
		base64.StdEncoding.EncodeToString(r.key),
	)
}

// Hasher hashes new passwords with one configured cost and verifies records
// of any cost.
type Hasher struct {
	cost         cost
	saltLength   uint32
	acceptBcrypt bool
}

func New(cfg Config) (*Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Hasher{
		cost: cost{
			memory:     cfg.Memory,
			iterations: cfg.Time,
			threads:    cfg.Parallelism,
			keyLength:  cfg.KeyLength,
		},
		saltLength:   cfg.SaltLength,
		acceptBcrypt: cfg.AcceptBcrypt,
	}, nil
}

// Hash returns a PHC record for password under a fresh salt. The password is
// hashed as given, without Unicode normalization.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrWeakInput
	}

	salt := make([]byte, h.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("reading salt: %w", err)
	}

	rec := phcRecord{cost: h.cost, salt: salt}
	rec.key = rec.derive(password, salt)
	return rec.String(), nil
}

// Verify re-derives the key with the record's own parameters. A wrong
// password is (false, nil).
func (h *Hasher) Verify(password, record string) (bool, error) {
	if isBcrypt(record) {
		if !h.acceptBcrypt {
			return false, fmt.Errorf("%w: bcrypt records disabled", ErrCorruptRecord)
		}
		return verifyBcrypt(password, record)
	}

	rec, err := parseRecord(record)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(rec.derive(password, rec.salt), rec.key) == 1, nil
}

// NeedsRehash is true for bcrypt records and for argon2id records cheaper
// than the configured cost.
func (h *Hasher) NeedsRehash(record string) (bool, error) {
	if isBcrypt(record) {
		return true, nil
	}
	rec, err := parseRecord(record)
	if err != nil {
		return false, err
	}
	return rec.below(h.cost), nil
}

func parseRecord(s string) (phcRecord, error) {
	corrupt := func(reason string) (phcRecord, error) {
		return phcRecord{}, fmt.Errorf("%w: %s", ErrCorruptRecord, reason)
	}

	// "", algorithm, version, params, salt, key
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" {
		return corrupt("not a PHC string")
	}
	if parts[1] != algorithmID {
		return corrupt("unsupported algorithm " + parts[1])
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return corrupt("unsupported version " + parts[2])
	}

	var rec phcRecord
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &rec.memory, &rec.iterations, &rec.threads); err != nil {
		return corrupt("unreadable parameters")
	}
	// Rejects trailing input and non-canonical numbers that Sscanf lets through.
	if fmt.Sprintf("m=%d,t=%d,p=%d", rec.memory, rec.iterations, rec.threads) != parts[3] {
		return corrupt("unreadable parameters")
	}
	if rec.memory < minMemoryKB || rec.iterations < minTimeCost || rec.threads < minParallelism {
		return corrupt("parameters below minimum")
	}

	var err error
	if rec.salt, err = base64.StdEncoding.DecodeString(parts[4]); err != nil || len(rec.salt) < int(minSaltLength) {
		return corrupt("bad salt")
	}
	if rec.key, err = base64.StdEncoding.DecodeString(parts[5]); err != nil || len(rec.key) < int(minKeyLength) {
		return corrupt("bad key")
	}
	rec.keyLength = uint32(len(rec.key))
	return rec, nil
}
