package authcore

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every engine setting. Field tags let it embed in a service's
// YAML file; key material is never read from YAML.
type Config struct {
	JWT        JWTConfig        `yaml:"jwt"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Password   PasswordConfig   `yaml:"password"`
	Roles      RolesConfig      `yaml:"roles"`
	Login      LoginConfig      `yaml:"login"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Validation ValidationConfig `yaml:"validation"`
	Audit      AuditConfig      `yaml:"audit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	// KeyPrefix namespaces every Redis key the engine writes.
	KeyPrefix string `yaml:"key_prefix"`
}

type JWTConfig struct {
	AccessTTL     time.Duration `yaml:"access_ttl"`
	SigningMethod string        `yaml:"signing_method"` // "hs256" (default) or "ed25519"
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	KeyID         string        `yaml:"key_id"`
	Leeway        time.Duration `yaml:"leeway"`
	PrivateKey    []byte        `yaml:"-"`
	PublicKey     []byte        `yaml:"-"`
}

type RefreshConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type PasswordConfig struct {
	Memory         uint32 `yaml:"memory_kib"`
	Time           uint32 `yaml:"iterations"`
	Parallelism    uint8  `yaml:"parallelism"`
	SaltLength     uint32 `yaml:"salt_length"`
	KeyLength      uint32 `yaml:"key_length"`
	UpgradeOnLogin bool   `yaml:"upgrade_on_login"`
	AcceptBcrypt   bool   `yaml:"accept_bcrypt"`
}

// RolesConfig defines the role order (lowest first) and the permissions each
// role adds on top of the roles below it.
type RolesConfig struct {
	Order            []string            `yaml:"order"`
	Grants           map[string][]string `yaml:"grants"`
	Default          string              `yaml:"default"`
	ManagePermission string              `yaml:"manage_permission"`
}

type LoginConfig struct {
	// RevealInactive returns ErrAccountInactive instead of
	// ErrInvalidCredentials for a correct password on an inactive account.
	RevealInactive bool `yaml:"reveal_inactive"`
	EnableIPLimit  bool `yaml:"enable_ip_limit"`
}

type RatePolicy struct {
	Threshold int           `yaml:"threshold"`
	Window    time.Duration `yaml:"window"`
	Lockout   time.Duration `yaml:"lockout"`
}

type RateLimitConfig struct {
	Login RatePolicy `yaml:"login"`
	API   RatePolicy `yaml:"api"`
}

type ValidationConfig struct {
	UsernameMin       int    `yaml:"username_min"`
	UsernameMax       int    `yaml:"username_max"`
	EmailMax          int    `yaml:"email_max"`
	PasswordMin       int    `yaml:"password_min"`
	PasswordMax       int    `yaml:"password_max"`
	RequireUpper      bool   `yaml:"require_upper"`
	RequireLower      bool   `yaml:"require_lower"`
	RequireDigit      bool   `yaml:"require_digit"`
	RequireSpecial    bool   `yaml:"require_special"`
	SpecialCharacters string `yaml:"special_characters"`
}

type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"latency_histograms"`
}

// DefaultRoles is the default role order, lowest first.
var DefaultRoles = []string{"GUEST", "USER", "MODERATOR", "ADMIN", "SUPER_ADMIN"}

// DefaultConfig returns production defaults. JWT keys must still be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
		},
		Refresh: RefreshConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			AcceptBcrypt:   true,
		},
		Roles: RolesConfig{
			Order: append([]string(nil), DefaultRoles...),
			Grants: map[string][]string{
				"USER":        {"profile_view"},
				"MODERATOR":   {"user_management"},
				"ADMIN":       {"system_config"},
				"SUPER_ADMIN": {"full_access"},
			},
			Default:          "USER",
			ManagePermission: "user_management",
		},
		Login: LoginConfig{
			EnableIPLimit: true,
		},
		RateLimit: RateLimitConfig{
			Login: RatePolicy{Threshold: 5, Window: 15 * time.Minute, Lockout: 15 * time.Minute},
			API:   RatePolicy{Threshold: 100, Window: 15 * time.Minute, Lockout: 15 * time.Minute},
		},
		Validation: ValidationConfig{
			UsernameMin:       3,
			UsernameMax:       50,
			EmailMax:          100,
			PasswordMin:       8,
			PasswordMax:       128,
			RequireUpper:      true,
			RequireLower:      true,
			RequireDigit:      true,
			RequireSpecial:    true,
			SpecialCharacters: "@$!%*?&",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		KeyPrefix: "auth:",
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Roles.Order = append([]string(nil), cfg.Roles.Order...)
	if cfg.Roles.Grants != nil {
		out.Roles.Grants = make(map[string][]string, len(cfg.Roles.Grants))
		for role, perms := range cfg.Roles.Grants {
			out.Roles.Grants[role] = append([]string(nil), perms...)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	// exp and iat are whole seconds; anything shorter can make them equal.
	if c.JWT.AccessTTL < time.Second {
		return errors.New("JWT AccessTTL must be at least 1s")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must be longer than JWT AccessTTL")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Roles
	if len(c.Roles.Order) == 0 {
		return errors.New("Roles Order must not be empty")
	}
	known := make(map[string]bool, len(c.Roles.Order))
	for _, r := range c.Roles.Order {
		if strings.TrimSpace(r) == "" {
			return errors.New("Roles Order contains an empty role")
		}
		if known[r] {
			return fmt.Errorf("Roles Order contains duplicate role %q", r)
		}
		known[r] = true
	}
	for r := range c.Roles.Grants {
		if !known[r] {
			return fmt.Errorf("Roles Grants references unknown role %q", r)
		}
	}
	if !known[c.Roles.Default] {
		return errors.New("Roles Default must be a member of Roles Order")
	}
	if c.Roles.ManagePermission == "" {
		return errors.New("Roles ManagePermission must be set")
	}

	// Rate limits
	for name, p := range map[string]RatePolicy{"Login": c.RateLimit.Login, "API": c.RateLimit.API} {
		if p.Threshold <= 0 {
			return fmt.Errorf("RateLimit %s Threshold must be > 0", name)
		}
		if p.Window <= 0 {
			return fmt.Errorf("RateLimit %s Window must be > 0", name)
		}
		if p.Lockout < 0 {
			return fmt.Errorf("RateLimit %s Lockout must be >= 0", name)
		}
	}

	// Validation
	v := c.Validation
	if v.UsernameMin < 1 || v.UsernameMax < v.UsernameMin {
		return errors.New("Validation username bounds are invalid")
	}
	if v.EmailMax < 3 {
		return errors.New("Validation EmailMax must be >= 3")
	}
	if v.PasswordMin < 1 || v.PasswordMax < v.PasswordMin {
		return errors.New("Validation password bounds are invalid")
	}
	if v.RequireSpecial && v.SpecialCharacters == "" {
		return errors.New("Validation SpecialCharacters must be set when RequireSpecial is true")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
