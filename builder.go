package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/munyaradzichiondegwa/vision-2030-platform/internal/audit"
	"github.com/munyaradzichiondegwa/vision-2030-platform/internal/flows"
	"github.com/munyaradzichiondegwa/vision-2030-platform/internal/rate"
	"github.com/munyaradzichiondegwa/vision-2030-platform/jwt"
	"github.com/munyaradzichiondegwa/vision-2030-platform/password"
	"github.com/munyaradzichiondegwa/vision-2030-platform/permission"
	"github.com/munyaradzichiondegwa/vision-2030-platform/refresh"
	"github.com/munyaradzichiondegwa/vision-2030-platform/session"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts     AccountStore
	refreshStore RefreshTokenStore
	rateStore    RateCounterStore
	auditSink    AuditSink
	logger       logrus.FieldLogger
	clock        Clock

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used for refresh tokens and rate counters
// when no explicit store is set for them.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

func (b *Builder) WithRefreshStore(store RefreshTokenStore) *Builder {
	b.refreshStore = store
	return b
}

func (b *Builder) WithRateCounterStore(store RateCounterStore) *Builder {
	b.rateStore = store
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, derives the dummy hash used for unknown
// accounts and wires every flow.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	clock := b.clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := b.logger
	if logger == nil {
		logger = logrus.New()
	}
	logger = logger.WithField("component", "authcore")

	// -------- STORES --------
	tokens := b.refreshStore
	if tokens == nil {
		if b.redis == nil {
			return nil, errors.New("refresh token store or redis client required")
		}
		tokens = session.NewRedisStore(b.redis, cfg.KeyPrefix, clock.Now)
	}

	counters := b.rateStore
	if counters == nil {
		if b.redis != nil {
			counters = rate.NewRedisStore(b.redis)
		} else {
			logger.Warn("no redis client or counter store; rate limits are per process")
			counters = rate.NewMemoryStore(clock.Now)
		}
	}

	limiter, err := rate.New(counters, rate.Config{
		Prefix: cfg.KeyPrefix,
		Policies: map[rate.Class]rate.Policy{
			rate.ClassLogin: rate.Policy(cfg.RateLimit.Login),
			rate.ClassAPI:   rate.Policy(cfg.RateLimit.API),
		},
	}, clock.Now)
	if err != nil {
		return nil, err
	}

	// -------- ROLES --------
	roles, err := permission.NewHierarchy(cfg.Roles.Order, cfg.Roles.Grants)
	if err != nil {
		return nil, err
	}

	// -------- CRYPTO --------
	hasher, err := password.New(password.Config{
		Memory:       cfg.Password.Memory,
		Time:         cfg.Password.Time,
		Parallelism:  cfg.Password.Parallelism,
		SaltLength:   cfg.Password.SaltLength,
		KeyLength:    cfg.Password.KeyLength,
		AcceptBcrypt: cfg.Password.AcceptBcrypt,
	})
	if err != nil {
		return nil, err
	}

	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           clock.Now,
	})
	if err != nil {
		return nil, err
	}

	iv, err := newInputValidator(cfg.Validation)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		clock:     clock,
		logger:    logger,
		accounts:  b.accounts,
		tokens:    tokens,
		limiter:   limiter,
		counters:  counters,
		roles:     roles,
		hasher:    hasher,
		jwt:       jm,
		validator: iv,
		metrics:   NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink, logger),
	}
	engine.flows = flows.New(engine.buildFlowDeps(dummyHash))

	b.built = true

	return engine, nil
}

func (e *Engine) buildFlowDeps(dummyHash string) flows.Deps {
	findByEmail := func(ctx context.Context, email string) (flows.AccountRecord, error) {
		a, err := e.accounts.FindByEmail(ctx, email)
		if err != nil {
			return flows.AccountRecord{}, err
		}
		return toRecord(a), nil
	}
	findByID := func(ctx context.Context, id string) (flows.AccountRecord, error) {
		a, err := e.accounts.FindByID(ctx, id)
		if err != nil {
			return flows.AccountRecord{}, err
		}
		return toRecord(a), nil
	}
	save := func(ctx context.Context, rec flows.AccountRecord) error {
		return e.accounts.Save(ctx, fromRecord(rec))
	}

	issue := flows.IssueDeps{
		Now:             e.clock.Now,
		RefreshTTL:      e.config.Refresh.TTL,
		NewID:           uuid.NewString,
		GenerateRefresh: refresh.Generate,
		CreateAccess: func(rec flows.AccountRecord) (string, time.Time, error) {
			return e.jwt.CreateAccess(jwt.Subject{
				AccountID: rec.ID,
				Email:     rec.Email,
				Role:      rec.Role,
			})
		},
		Tokens: e.tokens,
	}

	return flows.Deps{
		Register: flows.RegisterDeps{
			Now:         e.clock.Now,
			NewID:       uuid.NewString,
			DefaultRole: e.config.Roles.Default,
			Validate: func(in flows.RegisterInput) error {
				return e.validator.Validate(in.Username, in.Email, in.Password)
			},
			Exists:       e.accounts.ExistsByUsernameOrEmail,
			HashPassword: e.hasher.Hash,
			Save:         save,
			DuplicateErr: ErrDuplicateAccount,
		},
		Login: flows.LoginDeps{
			EnableIPLimit:   e.config.Login.EnableIPLimit,
			UpgradeOnLogin:  e.config.Password.UpgradeOnLogin,
			DummyHash:       dummyHash,
			AccountNotFound: ErrAccountNotFound,
			Now:             e.clock.Now,
			Limiter:         e.limiter,
			FindByEmail:     findByEmail,
			FindByID:        findByID,
			RecordLogin:     e.accounts.RecordLogin,
			SwapHash:        e.accounts.CompareAndSetPasswordHash,
			VerifyPassword:  e.hasher.Verify,
			NeedsRehash:     e.hasher.NeedsRehash,
			HashPassword:    e.hasher.Hash,
			Issue:           issue,
			Logger:          e.logger,
		},
		Refresh: flows.RefreshDeps{
			Now:             e.clock.Now,
			Validate:        refresh.Validate,
			Hash:            refresh.Hash,
			Tokens:          e.tokens,
			FindByID:        findByID,
			AccountNotFound: ErrAccountNotFound,
			Issue:           issue,
			Logger:          e.logger,
		},
		Logout: flows.LogoutDeps{
			Tokens: e.tokens,
		},
		ChangeRole: flows.ChangeRoleDeps{
			ManagePermission: e.config.Roles.ManagePermission,
			AccountNotFound:  ErrAccountNotFound,
			Now:              e.clock.Now,
			Roles:            e.roles,
			FindByID:         findByID,
			SwapRole:         e.accounts.CompareAndSetRole,
			Tokens:           e.tokens,
		},
		Verify: flows.VerifyDeps{
			ParseAccess: e.jwt.ParseAccess,
			Roles:       e.roles,
		},
	}
}

func toRecord(a *Account) flows.AccountRecord {
	return flows.AccountRecord{
		ID:           a.ID,
		Username:     a.Username,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Role:         a.Role,
		Active:       a.Active,
		LastLoginAt:  a.LastLoginAt,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func fromRecord(rec flows.AccountRecord) *Account {
	return &Account{
		ID:           rec.ID,
		Username:     rec.Username,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		Role:         rec.Role,
		Active:       rec.Active,
		LastLoginAt:  rec.LastLoginAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}
