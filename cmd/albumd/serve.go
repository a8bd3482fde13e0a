package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/internal/settings"
	otelexport "github.com/MrEthical07/goSession/metrics/export/otel"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/userstore/memory"
	"github.com/MrEthical07/goSession/userstore/pgstore"
	"github.com/MrEthical07/goSession/userstore/redisstore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

// accountStore is the identity store plus the write albumd needs for seeding and rehashing.
type accountStore interface {
	goSession.IdentityStore
	Put(ctx context.Context, u goSession.User) error
}

func newLogger(s settings.Log, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(s.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log.level: %w", err)
	}
	if s.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "albumd").Logger(), nil
}

func newRedisClient(s settings.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     s.Addr,
		Password: s.Password,
		DB:       s.DB,
	})
}

// openLimiter returns nil when login limiting is disabled.
func openLimiter(ctx context.Context, s *settings.Settings, log zerolog.Logger) (*rate.Limiter, func(), error) {
	if !s.LoginLimit.Enabled {
		return nil, func() {}, nil
	}
	rdb := newRedisClient(s.Store.Redis)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, func() {}, fmt.Errorf("login_limit: %w", err)
	}
	log.Info().
		Int("max_attempts", s.LoginLimit.MaxAttempts).
		Dur("window", s.LoginLimit.Window).
		Msg("login limiter enabled")
	return rate.New(rdb, rate.Config{
		MaxAttempts: s.LoginLimit.MaxAttempts,
		Window:      s.LoginLimit.Window,
		PerIP:       s.LoginLimit.PerIP,
		Prefix:      s.Store.Redis.Prefix,
	}), func() { _ = rdb.Close() }, nil
}

// openStore connects the configured backend. The returned close func is never nil.
func openStore(ctx context.Context, s settings.Store, log zerolog.Logger) (accountStore, func(), error) {
	switch s.Driver {
	case settings.DriverRedis:
		rdb := newRedisClient(s.Redis)
		store := redisstore.New(rdb, s.Redis.Prefix)
		if err := store.Ping(ctx); err != nil {
			_ = rdb.Close()
			return nil, func() {}, err
		}
		log.Info().Str("addr", s.Redis.Addr).Msg("redis identity store connected")
		return store, func() { _ = rdb.Close() }, nil

	case settings.DriverPostgres:
		pool, err := pgstore.Open(ctx, s.Postgres.DSN, s.Postgres.MaxConns)
		if err != nil {
			return nil, func() {}, err
		}
		store := pgstore.New(pool)
		if s.Postgres.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, func() {}, err
			}
		}
		log.Info().Msg("postgres identity store connected")
		return store, pool.Close, nil

	default:
		log.Warn().Msg("using in-memory identity store; accounts are lost on restart")
		return memory.New(), func() {}, nil
	}
}

// seedAccounts writes the configured default accounts. Existing rows are overwritten so
// password changes in the settings file take effect on restart.
func seedAccounts(ctx context.Context, store accountStore, hasher *password.Hasher, seeds []settings.Account, log zerolog.Logger) error {
	for _, acct := range seeds {
		hash, err := hasher.Hash(acct.Password)
		if err != nil {
			return fmt.Errorf("seed %q: %w", acct.Username, err)
		}
		err = store.Put(ctx, goSession.User{
			Username:     acct.Username,
			Nickname:     acct.Nickname,
			Role:         acct.Role,
			PasswordHash: hash,
		})
		if err != nil {
			return fmt.Errorf("seed %q: %w", acct.Username, err)
		}
		log.Info().Str("username", acct.Username).Str("role", acct.Role).Msg("seeded account")
	}
	return nil
}

func auditSink(s settings.Audit) (goSession.AuditSink, func(), error) {
	if !s.Enabled {
		return goSession.NoOpSink{}, func() {}, nil
	}
	if s.File == "" || s.File == "-" {
		return goSession.NewJSONWriterSink(os.Stdout), func() {}, nil
	}
	f, err := os.OpenFile(s.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, func() {}, fmt.Errorf("audit.file: %w", err)
	}
	return goSession.NewJSONWriterSink(f), func() { _ = f.Close() }, nil
}

func serve(ctx context.Context, s *settings.Settings, logOut io.Writer) error {
	log, err := newLogger(s.Log, logOut)
	if err != nil {
		return err
	}

	master, err := s.MasterKey()
	if err != nil {
		return err
	}
	hasher, err := password.NewHasher(s.Password)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, s.Store, log)
	defer closeStore()
	if err != nil {
		return err
	}
	if err := seedAccounts(ctx, store, hasher, s.Seeds(), log); err != nil {
		return err
	}

	limiter, closeLimiter, err := openLimiter(ctx, s, log)
	defer closeLimiter()
	if err != nil {
		return err
	}

	sink, closeSink, err := auditSink(s.Audit)
	defer closeSink()
	if err != nil {
		return err
	}

	engine, err := goSession.New().
		WithConfig(s.EngineConfig()).
		WithMasterSecret(master).
		WithIdentityStore(store).
		WithAuditSink(sink).
		WithLogger(log).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if s.Metrics.Enabled {
		// Forwards to whichever MeterProvider the process installs globally.
		exp, err := otelexport.New(otel.GetMeterProvider().Meter("github.com/MrEthical07/goSession"), engine)
		if err != nil {
			return err
		}
		defer exp.Close()
	}

	srv := &http.Server{
		Addr:         s.Server.Addr(),
		Handler:      newRouter(&app{engine: engine, store: store, hasher: hasher, limiter: limiter, log: log}, s.Metrics),
		ReadTimeout:  s.Server.ReadTimeout,
		WriteTimeout: s.Server.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msgf("server is reachable at http://%s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
