package authcore

import (
	"errors"
	"strings"
	"testing"
)

func TestInputValidator(t *testing.T) {
	iv, err := newInputValidator(DefaultConfig().Validation)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	tests := []struct {
		name     string
		username string
		email    string
		password string
		field    string
	}{
		{"valid", "alice_01", "alice@x.com", "Secret123!", ""},
		{"username too short", "al", "alice@x.com", "Secret123!", "username"},
		{"username too long", strings.Repeat("a", 51), "alice@x.com", "Secret123!", "username"},
		{"username punctuation", "alice.b", "alice@x.com", "Secret123!", "username"},
		{"email missing", "alice", "", "Secret123!", "email"},
		{"email malformed", "alice", "alice-at-x", "Secret123!", "email"},
		{"email too long", "alice", strings.Repeat("a", 95) + "@x.com", "Secret123!", "email"},
		{"password too short", "alice", "alice@x.com", "Se1!", "password"},
		{"password no upper", "alice", "alice@x.com", "secret123!", "password"},
		{"password no lower", "alice", "alice@x.com", "SECRET123!", "password"},
		{"password no digit", "alice", "alice@x.com", "Secretabc!", "password"},
		{"password no special", "alice", "alice@x.com", "Secret1234", "password"},
		{"password other symbol", "alice", "alice@x.com", "Secret123#", "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := iv.Validate(tt.username, tt.email, tt.password)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected valid input, got %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if _, ok := verr.Fields[tt.field]; !ok || len(verr.Fields) != 1 {
				t.Fatalf("expected only %s to be rejected, got %v", tt.field, verr.Fields)
			}
			if !errors.Is(err, ErrWeakInput) {
				t.Fatal("validation errors must unwrap to ErrWeakInput")
			}
		})
	}
}

func TestInputValidatorRelaxedPolicy(t *testing.T) {
	cfg := DefaultConfig().Validation
	cfg.RequireSpecial = false
	cfg.RequireUpper = false

	iv, err := newInputValidator(cfg)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	if err := iv.Validate("alice", "alice@x.com", "secret1234"); err != nil {
		t.Fatalf("expected relaxed policy to accept, got %v", err)
	}
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"password": "too short", "email": "invalid"}}
	if got := err.Error(); got != "weak input: email: invalid; password: too short" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestInputValidatorPolicyMessageComesFromTag(t *testing.T) {
	iv, err := newInputValidator(DefaultConfig().Validation)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	if err := iv.v.Var("Secretabc!", "password_policy"); err == nil {
		t.Fatal("password_policy tag must reject a password without digits")
	}

	var verr *ValidationError
	if !errors.As(iv.Validate("alice", "alice@x.com", "Secretabc!"), &verr) {
		t.Fatal("expected *ValidationError")
	}
	if got := verr.Fields["password"]; got != "must contain a digit" {
		t.Fatalf("unexpected password message %q", got)
	}
}
