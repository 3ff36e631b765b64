package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// RegisterFailureKind classifies register flow failures for root-level mapping.
type RegisterFailureKind int

const (
	RegisterFailureNone RegisterFailureKind = iota
	RegisterFailureInvalid
	RegisterFailureDuplicate
	RegisterFailureHash
	RegisterFailureStore
)

// RegisterInput is the normalized registration request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// RegisterResult carries the saved account or failure metadata.
type RegisterResult struct {
	Failure RegisterFailureKind
	Err     error
	Account *AccountRecord
}

// RegisterDeps captures register flow dependencies.
type RegisterDeps struct {
	Now          func() time.Time
	NewID        func() string
	DefaultRole  string
	Validate     func(RegisterInput) error
	Exists       func(ctx context.Context, username, email string) (bool, error)
	HashPassword func(string) (string, error)
	Save         func(ctx context.Context, account AccountRecord) error
	// DuplicateErr is the store error for a unique-constraint race on Save.
	DuplicateErr error
}

// NormalizeEmail is the canonical stored and keyed form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RunRegister validates input, rejects duplicates, hashes and saves a new
// account with the default role.
func RunRegister(ctx context.Context, in RegisterInput, deps RegisterDeps) RegisterResult {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = NormalizeEmail(in.Email)

	if err := deps.Validate(in); err != nil {
		return RegisterResult{Failure: RegisterFailureInvalid, Err: err}
	}

	exists, err := deps.Exists(ctx, in.Username, in.Email)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureStore, Err: err}
	}
	if exists {
		return RegisterResult{Failure: RegisterFailureDuplicate, Err: deps.DuplicateErr}
	}

	hash, err := deps.HashPassword(in.Password)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureHash, Err: err}
	}

	now := deps.Now()
	account := AccountRecord{
		ID:           deps.NewID(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         deps.DefaultRole,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := deps.Save(ctx, account); err != nil {
		if deps.DuplicateErr != nil && errors.Is(err, deps.DuplicateErr) {
			return RegisterResult{Failure: RegisterFailureDuplicate, Err: err}
		}
		return RegisterResult{Failure: RegisterFailureStore, Err: err}
	}

	return RegisterResult{Account: &account}
}
