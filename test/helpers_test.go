package test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	authcore "github.com/munyaradzichiondegwa/vision-2030-platform"
	"github.com/munyaradzichiondegwa/vision-2030-platform/refresh"
	"github.com/munyaradzichiondegwa/vision-2030-platform/session"
	"github.com/munyaradzichiondegwa/vision-2030-platform/sqlstore"
)

const password = "Secret123!"

// tokenStore is what both refresh-token backends provide.
type tokenStore interface {
	session.Store
	CountActive(ctx context.Context, accountID string) (int, error)
}

type backend struct {
	name string
	open func(t *testing.T) (tokenStore, *sqlstore.DB)
}

// backends lists every refresh-token store; each test runs against all.
var backends = []backend{
	{name: "redis", open: func(t *testing.T) (tokenStore, *sqlstore.DB) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return session.NewRedisStore(rdb, "it:", time.Now), openSQLite(t)
	}},
	{name: "sqlite", open: func(t *testing.T) (tokenStore, *sqlstore.DB) {
		db := openSQLite(t)
		return sqlstore.NewTokenStore(db, nil), db
	}},
}

func openSQLite(t *testing.T) *sqlstore.DB {
	t.Helper()
	ctx := context.Background()

	db, err := sqlstore.OpenSQLite(ctx, filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := sqlstore.EnsureSchema(ctx, db); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return db
}

func testConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	return cfg
}

// newEngine builds an engine over SQL accounts and the given token store.
func newEngine(t *testing.T, tokens tokenStore, db *sqlstore.DB) *authcore.Engine {
	t.Helper()

	logger, _ := test.NewNullLogger()
	engine, err := authcore.New().
		WithConfig(testConfig()).
		WithAccountStore(sqlstore.NewAccountStore(db)).
		WithRefreshStore(tokens).
		WithLogger(logger).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func newRecord(t *testing.T, accountID string, ttl time.Duration) (*session.Record, string) {
	t.Helper()

	raw, hash, err := refresh.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &session.Record{
		ID:        uuid.NewString(),
		AccountID: accountID,
		TokenHash: hash,
		Type:      session.TypeRefresh,
		Status:    session.StatusActive,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, raw
}
