package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"

	minHMACKeyLength = 32
	maxLeeway        = 2 * time.Minute
)

var (
	// ErrExpired is returned by ParseAccess for a well-formed token past exp.
	ErrExpired = errors.New("access token expired")
	// ErrInvalid is returned by ParseAccess for every other rejection.
	ErrInvalid = errors.New("access token invalid")
)

// Config controls signing and validation of access tokens.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for hs256, or a raw or PEM ed25519
	// private key. An ed25519 manager without one can only verify.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	// KeyID is written to the kid header and, without VerifyKeys, required
	// on every parsed token.
	KeyID string
	// VerifyKeys selects the verification key by kid, for rotation.
	VerifyKeys map[string][]byte
	// Now overrides the wall clock for iat/exp. Nil means time.Now.
	Now func() time.Time
}

// Manager signs and parses access tokens. Keys are decoded once by
// NewManager.
type Manager struct {
	cfg        Config
	method     jwt.SigningMethod
	signKey    any
	verifyKey  any
	verifyKeys map[string]any
	parser     *jwt.Parser
}

// Subject is the identity an access token is issued for.
type Subject struct {
	AccountID string
	Email     string
	Role      string
}

// AccessClaims is the decoded payload of an access token.
type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func NewManager(cfg Config) (*Manager, error) {
	// iat and exp are whole seconds.
	if cfg.AccessTTL < time.Second {
		return nil, errors.New("access TTL must be at least 1s")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, fmt.Errorf("leeway must be within [0, %s]", maxLeeway)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{cfg: cfg}
	var err error
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minHMACKeyLength {
			return nil, fmt.Errorf("hs256 requires a key of at least %d bytes", minHMACKeyLength)
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verifyKey = cfg.PrivateKey
		err = m.loadVerifyKeys(func(b []byte) (any, error) { return b, nil })

	case MethodEd25519:
		if len(cfg.PublicKey) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 requires a public key or verify keys")
		}
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			if m.signKey, err = parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if m.verifyKey, err = parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		err = m.loadVerifyKeys(func(b []byte) (any, error) { return parseEdPublicKey(b) })

	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}
	if err != nil {
		return nil, err
	}

	if cfg.KeyID != "" && m.verifyKeys != nil {
		if _, ok := m.verifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(cfg.Now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(opts...)

	return m, nil
}

func (m *Manager) loadVerifyKeys(decode func([]byte) (any, error)) error {
	if len(m.cfg.VerifyKeys) == 0 {
		return nil
	}
	m.verifyKeys = make(map[string]any, len(m.cfg.VerifyKeys))
	for kid, raw := range m.cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return errors.New("verify keys contain an empty kid")
		}
		key, err := decode(raw)
		if err != nil {
			return fmt.Errorf("verify key %q: %w", kid, err)
		}
		m.verifyKeys[kid] = key
	}
	return nil
}

// CreateAccess returns a signed token for subject and its expiry.
func (m *Manager) CreateAccess(subject Subject) (string, time.Time, error) {
	if subject.AccountID == "" {
		return "", time.Time{}, errors.New("subject account id is required")
	}
	if m.signKey == nil {
		return "", time.Time{}, errors.New("manager has no signing key")
	}

	issuedAt := m.cfg.Now()
	expiresAt := issuedAt.Add(m.cfg.AccessTTL)

	claims := AccessClaims{
		Email: subject.Email,
		Role:  subject.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.AccountID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.cfg.KeyID != "" {
		token.Header["kid"] = m.cfg.KeyID
	}

	signed, err := token.SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseAccess verifies signature, algorithm, issuer, audience and expiry.
// Failures unwrap to ErrExpired or ErrInvalid.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	var claims AccessClaims
	token, err := m.parser.ParseWithClaims(tokenStr, &claims, m.keyFor)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	case !token.Valid:
		return nil, ErrInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return nil, fmt.Errorf("%w: exp must be after iat", ErrInvalid)
	}
	return &claims, nil
}

// keyFor picks the verification key from the kid header.
func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	if t.Method.Alg() != m.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)

	if m.verifyKeys != nil {
		key, ok := m.verifyKeys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return key, nil
	}
	if m.cfg.KeyID != "" && kid != m.cfg.KeyID {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	if m.verifyKey == nil {
		return nil, errors.New("no verification key")
	}
	return m.verifyKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
