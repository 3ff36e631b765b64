package authcore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// inputValidator applies ValidationConfig to registration input.
type inputValidator struct {
	v   *validator.Validate
	cfg ValidationConfig
}

func newInputValidator(cfg ValidationConfig) (*inputValidator, error) {
	v := validator.New()
	if err := v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, err
	}

	iv := &inputValidator{v: v, cfg: cfg}
	if err := v.RegisterValidation("password_policy", func(fl validator.FieldLevel) bool {
		return iv.passwordPolicy(fl.Field().String()) == ""
	}); err != nil {
		return nil, err
	}
	return iv, nil
}

// Validate returns a *ValidationError listing every rejected field, or nil.
func (iv *inputValidator) Validate(username, email, password string) error {
	fields := make(map[string]string)

	usernameTag := fmt.Sprintf("required,min=%d,max=%d,username", iv.cfg.UsernameMin, iv.cfg.UsernameMax)
	if msg := iv.check(username, usernameTag); msg != "" {
		fields["username"] = msg
	}

	emailTag := fmt.Sprintf("required,max=%d,email", iv.cfg.EmailMax)
	if msg := iv.check(email, emailTag); msg != "" {
		fields["email"] = msg
	}

	// Length is counted in characters, not bytes.
	pwTag := fmt.Sprintf("required,min=%d,max=%d,password_policy", iv.cfg.PasswordMin, iv.cfg.PasswordMax)
	if msg := iv.check(password, pwTag); msg != "" {
		fields["password"] = msg
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func (iv *inputValidator) check(value, tag string) string {
	err := iv.v.Var(value, tag)
	if err == nil {
		return ""
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid"
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "username":
		return "may only contain letters, digits and underscores"
	case "email":
		return "must be a valid email address"
	case "password_policy":
		return iv.passwordPolicy(value)
	default:
		return "is invalid"
	}
}

// passwordPolicy returns the first unmet character-class requirement.
func (iv *inputValidator) passwordPolicy(pw string) string {
	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(iv.cfg.SpecialCharacters, r):
			special = true
		}
	}

	switch {
	case iv.cfg.RequireUpper && !upper:
		return "must contain an upper-case letter"
	case iv.cfg.RequireLower && !lower:
		return "must contain a lower-case letter"
	case iv.cfg.RequireDigit && !digit:
		return "must contain a digit"
	case iv.cfg.RequireSpecial && !special:
		return "must contain one of " + iv.cfg.SpecialCharacters
	}
	return ""
}
