// Command linkauthd serves the linkauth HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/gorilla/mux"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	la "github.com/fjrd84/linkauth"
	"github.com/fjrd84/linkauth/metrics"
	"github.com/fjrd84/linkauth/providers"
	"github.com/fjrd84/linkauth/stores/fs"
	"github.com/fjrd84/linkauth/stores/gae"
	gormstore "github.com/fjrd84/linkauth/stores/gorm"
	"github.com/fjrd84/linkauth/stores/memory"
	redislock "github.com/fjrd84/linkauth/stores/redis"
)

func main() {
	if err := run(); err != nil {
		slog.Error("linkauthd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := la.LoadConfig()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	var locker la.KeyLocker
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		rl := redislock.NewLocker(client)
		rl.TTL = cfg.LockTTL
		locker = rl
		slog.Info("using redis key locks", "addr", cfg.RedisAddr, "ttl", cfg.LockTTL)
	}

	recorder := metrics.Init(cfg.MetricsEnabled)
	broker := cfg.NewBroker(store, locker, recorder)
	auth := la.New(broker)

	router := mux.NewRouter()
	authRouter := auth.Routes(router.PathPrefix("/auth").Subrouter())
	authRouter.HandleFunc("/{provider}/token", providers.TokenHandler(providers.DefaultRegistry(), broker, auth.Extractor)).Methods(http.MethodPost)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if m, ok := recorder.(*metrics.Metrics); ok {
		router.Handle("/metrics", m.Handler())
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *la.Config) (la.AccountStore, error) {
	switch cfg.Store {
	case "memory":
		slog.Warn("using in-memory account store, accounts are lost on restart")
		return memory.NewAccountStore(), nil
	case "fs":
		return fs.NewAccountStore(cfg.FSPath), nil
	case "gorm":
		var dialector gorm.Dialector
		switch cfg.DBDriver {
		case "sqlite":
			dialector = sqlite.Open(cfg.DBDSN)
		case "postgres":
			dialector = postgres.Open(cfg.DBDSN)
		default:
			return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
		}
		db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return gormstore.NewAccountStore(db), nil
	case "gae":
		client, err := datastore.NewClient(ctx, cfg.GAEProject)
		if err != nil {
			return nil, fmt.Errorf("datastore client: %w", err)
		}
		return gae.NewAccountStore(client, cfg.GAENamespace), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}
