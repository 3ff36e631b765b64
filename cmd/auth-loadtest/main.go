package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	authcore "github.com/munyaradzichiondegwa/vision-2030-platform"
)

const password = "Loadtest123!"

type account struct {
	email string
	mu    sync.Mutex
	pair  authcore.TokenPair
}

func main() {
	var (
		accounts    = flag.Int("accounts", 1000, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per verify and refresh phase")
		logins      = flag.Int("logins", 2000, "operations in the login phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 || *logins <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, ops and logins must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()
	client, cleanup, err := connect(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	engine, err := buildEngine(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]*account, *accounts)
	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	for i := range states {
		st := &account{email: fmt.Sprintf("load%d@example.com", i)}
		if _, err := engine.Register(ctx, authcore.RegisterRequest{
			Username: fmt.Sprintf("load%d", i), Email: st.email, Password: password,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}
		res, err := engine.Login(ctx, st.email, password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		st.pair = res.Tokens
		states[i] = st
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loginStats := runPhase(*logins, *concurrency, func(r *mrand.Rand) error {
		st := states[r.Intn(len(states))]
		_, err := engine.Login(ctx, st.email, password)
		return err
	})
	verifyStats := runPhase(*ops, *concurrency, func(r *mrand.Rand) error {
		st := states[r.Intn(len(states))]
		st.mu.Lock()
		token := st.pair.AccessToken
		st.mu.Unlock()
		_, err := engine.VerifyAccessToken(ctx, token)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, func(r *mrand.Rand) error {
		st := states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		pair, err := engine.Refresh(ctx, st.pair.RefreshToken)
		if err != nil {
			return err
		}
		st.pair = *pair
		return nil
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("verify", verifyStats)
	printStats("refresh", refreshStats)
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// buildEngine uses cheap hashing and effectively unlimited throttles so the
// phases measure token handling rather than argon2 or lockouts.
func buildEngine(client redis.UniversalClient) (*authcore.Engine, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = key
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	cfg.Login.EnableIPLimit = false
	cfg.RateLimit.Login.Threshold = 1 << 30
	cfg.RateLimit.API.Threshold = 1 << 30
	cfg.KeyPrefix = "loadtest:"

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	return authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(authcore.NewMemoryAccountStore()).
		WithLogger(logger).
		Build()
}

func runPhase(ops, concurrency int, op func(*mrand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%-8s ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
