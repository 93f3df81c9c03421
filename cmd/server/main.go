package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/orderstate/internal/auth"
	"github.com/mmynk/orderstate/internal/cart"
	"github.com/mmynk/orderstate/internal/config"
	"github.com/mmynk/orderstate/internal/favorites"
	"github.com/mmynk/orderstate/internal/gateway"
	"github.com/mmynk/orderstate/internal/gateway/gcs"
	"github.com/mmynk/orderstate/internal/gateway/memory"
	"github.com/mmynk/orderstate/internal/gateway/postgres"
	"github.com/mmynk/orderstate/internal/metrics"
	"github.com/mmynk/orderstate/internal/recent"
	"github.com/mmynk/orderstate/internal/registration"
	"github.com/mmynk/orderstate/internal/service"
	"github.com/mmynk/orderstate/internal/storage/sqlite"
	"github.com/mmynk/orderstate/pkg/logging"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)))

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local state store
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
		return err
	}
	store, err := sqlite.New(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	keys, err := store.Keys(ctx)
	if err != nil {
		return err
	}
	slog.Info("Storage initialized", "database", cfg.Storage.DBPath, "keys", len(keys))

	gw, closeGateway, err := openGateway(ctx, cfg.Remote)
	if err != nil {
		return err
	}
	defer closeGateway()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	jwt := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	session := auth.NewSession(jwt, gw, logging.Component("session"))

	// Engines outlive the signal context so shutdown can drain their writes.
	engineCtx, cancelEngines := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelEngines()

	cartEngine := cart.New(engineCtx, store, gw, cart.Options{
		BaseFee: cfg.Cart.BaseDeliveryFee,
		Logger:  logging.Component("cart"),
		Metrics: m,
	})
	defer cartEngine.Close()

	favEngine := favorites.New(engineCtx, store, gw, favorites.Options{
		Logger:  logging.Component("favorites"),
		Metrics: m,
	})
	defer favEngine.Close()
	unbind := favEngine.Bind(session)
	defer unbind()

	regOpts := registration.Options{Logger: logging.Component("registration"), Metrics: m}

	handler := service.NewRouter(service.Deps{
		Cart:      cartEngine,
		Favorites: favEngine,
		Session:   session,
		Driver:    registration.NewDriver(gw, session, regOpts),
		Merchant:  registration.NewMerchant(gw, session, regOpts),
		Recent:    recent.New(ctx, store, logging.Component("recent"), m),
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:    logging.Component("http"),
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "address", srv.Addr)
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

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Let pending store writes land before the store closes.
	cartEngine.Wait()
	favEngine.Wait()
	return nil
}

// openGateway connects to Postgres (with Cloud Storage artifacts when a bucket
// is configured) or falls back to the in-memory gateway for offline development.
func openGateway(ctx context.Context, cfg config.RemoteConfig) (gateway.Gateway, func(), error) {
	if cfg.DatabaseURL == "" {
		gw := memory.New()
		if cfg.SeedPath != "" {
			data, err := os.ReadFile(cfg.SeedPath)
			if err != nil {
				return nil, nil, err
			}
			if err := gw.LoadSeed(data); err != nil {
				return nil, nil, err
			}
		}
		slog.Warn("DATABASE_URL not set, using in-memory gateway", "seed", cfg.SeedPath)
		return gw, func() {}, nil
	}

	var artifacts gateway.ArtifactStore
	closers := []func() error{}
	if cfg.GCSBucket != "" {
		as, err := gcs.New(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		if cfg.PublicBaseURL != "" {
			as.PublicBaseURL = cfg.PublicBaseURL
		}
		artifacts = as
		closers = append(closers, as.Close)
		slog.Info("Artifact store initialized", "bucket", cfg.GCSBucket)
	}

	pg, err := postgres.New(ctx, cfg.DatabaseURL, artifacts)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, nil, err
	}
	closers = append(closers, pg.Close)

	if cfg.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("Failed to migrate remote schema", "error", err)
		}
	}
	slog.Info("Remote gateway initialized", "backend", "postgres")

	return pg, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("Failed to close remote resource", "error", err)
			}
		}
	}, nil
}
