package rate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Class names an independently configured counter family.
type Class string

const (
	ClassLogin Class = "login"
	ClassAPI   Class = "api"
)

// Policy configures one class.
type Policy struct {
	Threshold int
	Window    time.Duration
	Lockout   time.Duration
}

// Config holds rate limiter tuning parameters.
type Config struct {
	Prefix   string
	Policies map[Class]Policy
}

// Decision is the outcome of one Attempt.
type Decision struct {
	Allowed     bool
	Count       int64
	LockedUntil time.Time
}

// CounterStore is the atomic counter backend.
type CounterStore interface {
	// IncrementAndGet increments key, sets window as its TTL on the first hit,
	// and returns the new count with the remaining TTL.
	IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Reset(ctx context.Context, key string) error
}

// Limiter applies class policies over a CounterStore.
type Limiter struct {
	store  CounterStore
	config Config
	now    func() time.Time
}

// New validates cfg and returns a Limiter. now defaults to time.Now.
func New(store CounterStore, cfg Config, now func() time.Time) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("rate limiter requires a counter store")
	}
	if len(cfg.Policies) == 0 {
		return nil, errors.New("rate limiter requires at least one policy")
	}
	for class, p := range cfg.Policies {
		if p.Threshold <= 0 {
			return nil, fmt.Errorf("rate class %q: threshold must be > 0", class)
		}
		if p.Window <= 0 {
			return nil, fmt.Errorf("rate class %q: window must be > 0", class)
		}
		if p.Lockout < 0 {
			return nil, fmt.Errorf("rate class %q: lockout must be >= 0", class)
		}
	}
	if now == nil {
		now = time.Now
	}

	return &Limiter{
		store:  store,
		config: cfg,
		now:    now,
	}, nil
}

// Key returns the counter key for class and subject.
func (l *Limiter) Key(class Class, subject string) string {
	return l.config.Prefix + "rl:" + string(class) + ":" + subject
}

// Attempt records one attempt and reports whether it may proceed.
func (l *Limiter) Attempt(ctx context.Context, class Class, subject string) (Decision, error) {
	policy, ok := l.config.Policies[class]
	if !ok {
		return Decision{}, ErrUnknownClass
	}

	key := l.Key(class, subject)
	count, ttl, err := l.store.IncrementAndGet(ctx, key, policy.Window)
	if err != nil {
		return Decision{}, err
	}

	if count <= int64(policy.Threshold) {
		return Decision{Allowed: true, Count: count}, nil
	}

	if count == int64(policy.Threshold)+1 && policy.Lockout > 0 {
		if err := l.store.Expire(ctx, key, policy.Lockout); err != nil {
			return Decision{}, err
		}
		ttl = policy.Lockout
	}
	if ttl <= 0 {
		ttl = policy.Window
	}

	return Decision{
		Allowed:     false,
		Count:       count,
		LockedUntil: l.now().Add(ttl),
	}, nil
}

// Reset clears the counter for class and subject.
func (l *Limiter) Reset(ctx context.Context, class Class, subject string) error {
	if _, ok := l.config.Policies[class]; !ok {
		return ErrUnknownClass
	}
	return l.store.Reset(ctx, l.Key(class, subject))
}
