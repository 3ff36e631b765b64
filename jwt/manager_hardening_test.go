package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newHSManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    testSecret,
		Issuer:        "authd",
		Audience:      "api",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestCreateAndParseAccess(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := newHSManager(t, clock)

	token, exp, err := m.CreateAccess(Subject{AccountID: "acc-1", Email: "a@x.io", Role: "USER"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if !exp.Equal(clock.now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "acc-1" || claims.Email != "a@x.io" || claims.Role != "USER" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		t.Fatal("expected exp after iat")
	}
}

func TestParseAccessExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := newHSManager(t, clock)

	token, _, err := m.CreateAccess(Subject{AccountID: "acc-1", Role: "USER"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	clock.now = clock.now.Add(16 * time.Minute)
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestParseAccessTamperedSignature(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	token, _, err := m.CreateAccess(Subject{AccountID: "acc-1", Role: "USER"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := m.ParseAccess(tampered); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "acc-1",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
}

func TestParseAccessIssuerAndAudience(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	other, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    testSecret,
		Issuer:        "someone-else",
		Audience:      "api",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, _, err := other.CreateAccess(Subject{AccountID: "acc-1", Role: "USER"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected issuer mismatch to be rejected, got %v", err)
	}
}

func TestEd25519RoundTripWithKeyID(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, _, err := m.CreateAccess(Subject{AccountID: "acc-1", Role: "ADMIN"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Role != "ADMIN" {
		t.Fatalf("unexpected role %q", claims.Role)
	}
}

func TestParseAccessUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)

	signer, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k-unknown",
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	token, _, err := signer.CreateAccess(Subject{AccountID: "acc-1", Role: "USER"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	verifier, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		VerifyKeys:    map[string][]byte{"k2": pub2},
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := verifier.ParseAccess(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected unknown kid failure, got %v", err)
	}
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	_, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")})
	if err == nil {
		t.Fatal("expected short hs256 key to be rejected")
	}
}

func TestNewManagerRejectsSubSecondTTL(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	if _, err := NewManager(Config{AccessTTL: 999 * time.Millisecond, SigningMethod: MethodHS256, PrivateKey: secret}); err == nil {
		t.Fatal("expected sub-second access TTL to be rejected")
	}

	// Just before a second boundary, where truncation hurts most.
	now := time.Date(2026, 3, 1, 12, 0, 0, 999_000_000, time.UTC)
	m, err := NewManager(Config{
		AccessTTL:     time.Second,
		SigningMethod: MethodHS256,
		PrivateKey:    secret,
		Now:           func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, err := m.CreateAccess(Subject{AccountID: "acc-1", Email: "a@x.com", Role: "USER"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		t.Fatalf("exp %v must be after iat %v", claims.ExpiresAt, claims.IssuedAt)
	}
}
