// Command authd serves the authentication engine over HTTP.
//
//	authd -config /etc/authd.yaml
//
// Accounts and audit events live in PostgreSQL or SQLite. Refresh tokens and
// rate counters live in Redis unless refresh_store is "sql", in which case a
// cron job purges expired token rows.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	authcore "github.com/munyaradzichiondegwa/vision-2030-platform"
	"github.com/munyaradzichiondegwa/vision-2030-platform/httpapi"
	"github.com/munyaradzichiondegwa/vision-2030-platform/sqlstore"
)

func main() {
	configPath := flag.String("config", os.Getenv("AUTHD_CONFIG"), "path to the YAML config file")
	flag.Parse()

	logger := logrus.New()
	cfg, err := loadConfig(*configPath, os.Getenv)
	if err != nil {
		logger.WithError(err).Fatal("loading config")
	}
	if err := configureLogger(logger, cfg.Log); err != nil {
		logger.WithError(err).Fatal("configuring logger")
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("authd stopped")
	}
}

func configureLogger(logger *logrus.Logger, cfg logConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json", "":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return nil
}

func openDB(ctx context.Context, cfg dbConfig) (*sqlstore.DB, error) {
	if cfg.Driver == "postgres" {
		return sqlstore.OpenPostgres(ctx, cfg.DSN)
	}
	return sqlstore.OpenSQLite(ctx, cfg.DSN)
}

func run(cfg config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := sqlstore.EnsureSchema(ctx, db); err != nil {
		return err
	}

	builder := authcore.New().
		WithConfig(cfg.Auth).
		WithAccountStore(sqlstore.NewAccountStore(db)).
		WithLogger(logger.WithField("component", "authcore"))

	if len(cfg.Redis.Addrs) > 0 {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("verifying redis connection: %w", err)
		}
		builder.WithRedis(rdb)
	}

	var tokens *sqlstore.TokenStore
	if cfg.RefreshStore == "sql" {
		tokens = sqlstore.NewTokenStore(db, nil)
		builder.WithRefreshStore(tokens)
	}

	switch cfg.AuditSink {
	case "sql":
		sink, err := sqlstore.NewAuditSink(db)
		if err != nil {
			return err
		}
		builder.WithAuditSink(sink)
	case "stdout":
		builder.WithAuditSink(authcore.NewJSONAuditSink(os.Stdout))
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer engine.Close()

	latency, err := engine.Health(ctx)
	if err != nil {
		return fmt.Errorf("checking refresh token store: %w", err)
	}
	logger.WithField("latency", latency).Info("refresh token store reachable")

	scheduler := cron.New()
	if tokens != nil && cfg.Purge.Schedule != "" {
		if err := schedulePurge(scheduler, tokens, cfg.Purge, logger); err != nil {
			return err
		}
	}
	if engine.SweepsRateCounters() && cfg.Purge.SweepSchedule != "" {
		if err := scheduleSweep(scheduler, engine, cfg.Purge.SweepSchedule, logger); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	router := mux.NewRouter()
	httpapi.New(engine, logger.WithField("component", "httpapi"), httpapi.WithTrustProxy(cfg.TrustProxy)).
		RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Listen).Info("authd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	fields := logrus.Fields{
		"audit_dropped": engine.AuditDropped(),
		"audit_failed":  engine.AuditFailed(),
	}
	for id, n := range engine.MetricsSnapshot().Counters {
		fields[id.String()] = n
	}
	logger.WithFields(fields).Info("authd stopped")
	return nil
}

func schedulePurge(c *cron.Cron, tokens *sqlstore.TokenStore, cfg purgeConfig, logger logrus.FieldLogger) error {
	_, err := c.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		n, err := tokens.PurgeExpired(ctx, cfg.Grace)
		if err != nil {
			logger.WithError(err).Error("refresh token purge failed")
			return
		}
		logger.WithField("deleted", n).Info("refresh token purge completed")
	})
	if err != nil {
		return fmt.Errorf("scheduling purge: %w", err)
	}
	return nil
}

type counterSweeper interface {
	SweepRateCounters() int
}

func scheduleSweep(c *cron.Cron, engine counterSweeper, schedule string, logger logrus.FieldLogger) error {
	_, err := c.AddFunc(schedule, func() {
		if n := engine.SweepRateCounters(); n > 0 {
			logger.WithField("removed", n).Debug("rate counter sweep completed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling counter sweep: %w", err)
	}
	return nil
}
