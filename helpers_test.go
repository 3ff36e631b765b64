package authcore

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/munyaradzichiondegwa/vision-2030-platform/internal/rate"
	"github.com/munyaradzichiondegwa/vision-2030-platform/refresh"
	"github.com/munyaradzichiondegwa/vision-2030-platform/session"
)

const testPassword = "Secret123!"

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memAccountStore is an in-memory AccountStore.
type memAccountStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	saves    int
	failNext error
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{accounts: make(map[string]Account)}
}

func (s *memAccountStore) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *memAccountStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			out := a
			return &out, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (s *memAccountStore) FindByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

func (s *memAccountStore) Save(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	for id, a := range s.accounts {
		if id == account.ID {
			continue
		}
		if strings.EqualFold(a.Email, account.Email) || a.Username == account.Username {
			return ErrDuplicateAccount
		}
	}
	s.accounts[account.ID] = *account
	s.saves++
	return nil
}

func (s *memAccountStore) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return false, err
	}
	for _, a := range s.accounts {
		if a.Username == username || strings.EqualFold(a.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memAccountStore) RecordLogin(_ context.Context, id string, at time.Time) error {
	_, err := s.update(id, func(a *Account) bool {
		a.LastLoginAt = at
		a.UpdatedAt = at
		return true
	})
	return err
}

func (s *memAccountStore) CompareAndSetPasswordHash(_ context.Context, id, expected, next string, at time.Time) (bool, error) {
	return s.update(id, func(a *Account) bool {
		if a.PasswordHash != expected {
			return false
		}
		a.PasswordHash = next
		a.UpdatedAt = at
		return true
	})
}

func (s *memAccountStore) CompareAndSetRole(_ context.Context, id, expected, next string, at time.Time) (bool, error) {
	return s.update(id, func(a *Account) bool {
		if a.Role != expected {
			return false
		}
		a.Role = next
		a.UpdatedAt = at
		return true
	})
}

func (s *memAccountStore) update(id string, apply func(*Account) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return false, err
	}
	a, ok := s.accounts[id]
	if !ok {
		return false, ErrAccountNotFound
	}
	if !apply(&a) {
		return false, nil
	}
	s.accounts[id] = a
	s.saves++
	return true, nil
}

func (s *memAccountStore) get(id string) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

func (s *memAccountStore) setActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[id]
	a.Active = active
	s.accounts[id] = a
}

// interleavingAccounts runs afterFind once, right after the next
// FindByEmail read, so a concurrent writer lands between read and write.
type interleavingAccounts struct {
	*memAccountStore
	afterFind func()
}

func (s *interleavingAccounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	a, err := s.memAccountStore.FindByEmail(ctx, email)
	if hook := s.afterFind; hook != nil {
		s.afterFind = nil
		hook()
	}
	return a, err
}

// revokeFailingTokens fails RevokeAllForAccount while err is set.
type revokeFailingTokens struct {
	session.Store
	mu  sync.Mutex
	err error
}

func (s *revokeFailingTokens) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *revokeFailingTokens) RevokeAllForAccount(ctx context.Context, accountID string) (int, error) {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return s.Store.RevokeAllForAccount(ctx, accountID)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = append([]byte(nil), testSecret...)
	cfg.JWT.Issuer = "authcore-test"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	cfg.KeyPrefix = "t:"
	return cfg
}

type testEnv struct {
	engine   *Engine
	accounts *memAccountStore
	clock    *fakeClock
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	sessions *session.RedisStore
	logs     *test.Hook
}

type envOption func(*Builder)

func withSink(sink AuditSink) envOption {
	return func(b *Builder) { b.WithAuditSink(sink) }
}

func newTestEnv(t testing.TB, cfg Config, opts ...envOption) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := newFakeClock()
	accounts := newMemAccountStore()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithRateCounterStore(rate.NewMemoryStore(clock.Now)).
		WithLogger(logger).
		WithClock(clock)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine:   engine,
		accounts: accounts,
		clock:    clock,
		mr:       mr,
		rdb:      rdb,
		sessions: session.NewRedisStore(rdb, cfg.KeyPrefix, clock.Now),
		logs:     hook,
	}
}

// seed stores an account with role directly, bypassing Register.
func (env *testEnv) seed(t testing.TB, id, email, role string) *Account {
	t.Helper()

	hash, err := env.engine.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := env.clock.Now()
	a := &Account{
		ID:           id,
		Username:     id,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := env.accounts.Save(context.Background(), a); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	return a
}

func (env *testEnv) login(t testing.TB, email string) *LoginResult {
	t.Helper()

	res, err := env.engine.Login(context.Background(), email, testPassword)
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return res
}

func (env *testEnv) activeTokens(t testing.TB, accountID string) int {
	t.Helper()

	n, err := env.sessions.CountActive(context.Background(), accountID)
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	return n
}

func refreshHash(raw string) string {
	return refresh.Hash(raw)
}
