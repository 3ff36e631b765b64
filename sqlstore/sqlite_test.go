package sqlstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authcore "github.com/munyaradzichiondegwa/vision-2030-platform"
	"github.com/munyaradzichiondegwa/vision-2030-platform/refresh"
	"github.com/munyaradzichiondegwa/vision-2030-platform/session"
)

func openTestSQLite(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, EnsureSchema(ctx, db))
	return db
}

func TestSQLiteAccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewAccountStore(openTestSQLite(t))
	now := time.Now().UTC().Truncate(time.Millisecond)

	acc := &authcore.Account{
		ID: uuid.NewString(), Username: "alice", Email: "Alice@Example.com",
		PasswordHash: "hash", Role: "USER", Active: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Save(ctx, acc))

	got, err := store.FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	assert.Equal(t, "alice@example.com", got.Email)

	got.Role = "ADMIN"
	got.LastLoginAt = now.Add(time.Minute)
	require.NoError(t, store.Save(ctx, got))

	again, err := store.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "ADMIN", again.Role)
	assert.True(t, again.LastLoginAt.Equal(now.Add(time.Minute)))

	exists, err := store.ExistsByUsernameOrEmail(ctx, "someone", "alice@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	dup := *acc
	dup.ID = uuid.NewString()
	dup.Username = "alice2"
	assert.ErrorIs(t, store.Save(ctx, &dup), authcore.ErrDuplicateAccount)

	_, err = store.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, authcore.ErrAccountNotFound)
}

func TestSQLiteLoginDoesNotOverwriteRole(t *testing.T) {
	ctx := context.Background()
	store := NewAccountStore(openTestSQLite(t))
	now := time.Now().UTC().Truncate(time.Millisecond)

	acc := &authcore.Account{
		ID: uuid.NewString(), Username: "mod", Email: "mod@example.com",
		PasswordHash: "h1", Role: "MODERATOR", Active: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Save(ctx, acc))

	// A login read the account, then a demotion landed before its write.
	stale, err := store.FindByID(ctx, acc.ID)
	require.NoError(t, err)

	swapped, err := store.CompareAndSetRole(ctx, acc.ID, "MODERATOR", "USER", now)
	require.NoError(t, err)
	require.True(t, swapped)

	require.NoError(t, store.RecordLogin(ctx, stale.ID, now.Add(time.Second)))
	swapped, err = store.CompareAndSetPasswordHash(ctx, stale.ID, stale.PasswordHash, "h2", now.Add(time.Second))
	require.NoError(t, err)
	require.True(t, swapped)

	got, err := store.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "USER", got.Role)
	assert.Equal(t, "h2", got.PasswordHash)
	assert.True(t, got.LastLoginAt.Equal(now.Add(time.Second)))

	swapped, err = store.CompareAndSetRole(ctx, acc.ID, "MODERATOR", "GUEST", now)
	require.NoError(t, err)
	assert.False(t, swapped)
}

func TestSQLiteTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	store := NewTokenStore(openTestSQLite(t), func() time.Time { return now })

	newRecord := func(account string, expires time.Time) *session.Record {
		_, hash, err := refresh.Generate()
		require.NoError(t, err)
		return &session.Record{
			ID: uuid.NewString(), AccountID: account, TokenHash: hash,
			Type: session.TypeRefresh, Status: session.StatusActive,
			ExpiresAt: expires, CreatedAt: now,
		}
	}

	first := newRecord("acc-1", now.Add(time.Hour))
	second := newRecord("acc-1", now.Add(time.Hour))
	stale := newRecord("acc-2", now.Add(-2*time.Hour))
	for _, rec := range []*session.Record{first, second, stale} {
		require.NoError(t, store.Create(ctx, rec))
	}

	got, err := store.FindByHash(ctx, first.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, session.StatusActive, got.Status)
	assert.True(t, got.ExpiresAt.Equal(first.ExpiresAt))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.CompareAndSetStatus(ctx, first.ID, session.StatusActive, session.StatusConsumed)
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	active, err := store.CountActive(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, active)

	n, err := store.RevokeAllForAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	purged, err := store.PurgeExpired(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = store.FindByHash(ctx, stale.TokenHash)
	assert.ErrorIs(t, err, session.ErrRecordNotFound)
}

func TestSQLiteAuditSink(t *testing.T) {
	ctx := context.Background()
	db := openTestSQLite(t)
	sink, err := NewAuditSink(db)
	require.NoError(t, err)

	require.NoError(t, sink.Emit(ctx, authcore.AuditEvent{
		Timestamp: time.Now(), EventType: "login_success", Severity: authcore.SeverityInfo,
		AccountID: "acc-1", Success: true, Metadata: map[string]string{"email": "a@b.co"},
	}))

	var eventType, metadata string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT event_type, metadata FROM audit_logs`).Scan(&eventType, &metadata))
	assert.Equal(t, "login_success", eventType)
	assert.JSONEq(t, `{"email":"a@b.co"}`, metadata)
}
