package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/drama-notifier/internal/api"
	"github.com/LeventeLantos/drama-notifier/internal/auth"
	"github.com/LeventeLantos/drama-notifier/internal/cache"
	"github.com/LeventeLantos/drama-notifier/internal/client"
	"github.com/LeventeLantos/drama-notifier/internal/config"
	"github.com/LeventeLantos/drama-notifier/internal/lock"
	"github.com/LeventeLantos/drama-notifier/internal/model"
	"github.com/LeventeLantos/drama-notifier/internal/repo"
	"github.com/LeventeLantos/drama-notifier/internal/scheduler"
	"github.com/LeventeLantos/drama-notifier/internal/service"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}
	setupLogger(cfg.Env)

	slog.Info("drama notifier starting",
		"env", cfg.Env,
		"addr", cfg.Server.Address,
		"provider", cfg.SMS.Provider,
		"interval", cfg.Scheduler.Interval.String(),
		"lead_days", cfg.Scheduler.LeadDays,
		"workers", cfg.Dispatch.Workers,
		"redis", cfg.Redis.Enabled,
	)

	if err := run(cfg); err != nil {
		slog.Error("notifier stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := repo.MigrateUp(cfg.Database.PostgresURL); err != nil {
		return err
	}

	store, err := repo.NewPostgresStore(ctx, cfg.Database.PostgresURL)
	if err != nil {
		return err
	}
	defer store.Close()

	var (
		locker lock.Locker    = lock.NewLocalLocker()
		runs   cache.RunStore = cache.NewMemoryRunStore()
	)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return err
		}

		locker = lock.NewRedisLocker(rdb, cfg.Redis.LockExpiry)
		runs = cache.NewRedisRunStore(rdb, cfg.Redis.TTL)
		slog.Info("redis connected", "addr", cfg.Redis.Address)
	}

	dispatcher := service.NewDispatcher(store, store, store, newSMSClient(cfg.SMS)).
		WithWorkers(cfg.Dispatch.Workers).
		WithSendTimeout(cfg.SMS.Timeout).
		WithLeadDays(cfg.Scheduler.LeadDays).
		WithLocker(locker).
		WithRunHook(func(ctx context.Context, s model.RunSummary) {
			if err := runs.SaveRun(ctx, s); err != nil {
				slog.Warn("saving run summary failed", "trigger", s.Trigger, "error", err)
			}
		})
	catalog := service.NewCatalog(store, store, cfg.Dispatch.ContentMax).WithLocker(locker)
	authn := auth.NewAuthenticator(store, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	sched, err := scheduler.New(cfg.Scheduler.Interval, func(ctx context.Context, now time.Time) error {
		_, err := dispatcher.DispatchScheduled(ctx, now)
		return err
	})
	if err != nil {
		return err
	}
	if cfg.Scheduler.Enabled {
		sched.Start()
	}
	defer sched.Stop()

	handler := api.NewHandler(api.Deps{
		Auth:       authn,
		Catalog:    catalog,
		Dispatcher: dispatcher,
		Ledger:     store,
		Scheduler:  sched,
		Runs:       runs,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(handler)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newSMSClient(cfg config.SMSConfig) service.SendClient {
	if cfg.Provider == config.ProviderWebhook {
		return client.NewWebhookClient(cfg.WebhookURL, cfg.Timeout)
	}
	return client.NewSMSNetBDClient(cfg.APIURL, cfg.APIKey, cfg.SenderID, cfg.Timeout)
}

func setupLogger(env string) {
	var handler slog.Handler
	switch env {
	case envProd:
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	case envLocal, envDev:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
