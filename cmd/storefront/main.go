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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"storefront/internal/auth"
	"storefront/internal/cache"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/email"
	"storefront/internal/geo"
	"storefront/internal/services"
	"storefront/internal/session"
	"storefront/internal/upload"
	"storefront/internal/web"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Kodak Express storefront",
	RunE:  serve,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the storefront pages and JSON API",
	RunE:  serve,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "storefront.yaml", "config file path")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Storefront stopped", "error", err)
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	slog.Info("Starting storefront", "port", cfg.HTTPPort, "backend", cfg.Backend.URL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend := services.NewManagerService(cfg)

	var (
		store   session.Store
		limiter web.RateLimiter
		health  func(ctx context.Context) error
		cat     *catalog.Catalog
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := cache.NewClient(cfg.Redis.Addr)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisClient.Close()
		slog.Info("Connected to Redis", "addr", cfg.Redis.Addr)

		store = session.NewRedisStore(redisClient, cfg.Session.TTL)
		limiter = redisClient
		health = redisClient.Ping
		cat = catalog.New(backend, redisClient, cfg.Catalog.CacheTTL)
	} else {
		slog.Warn("No redis configured, sessions live in memory and logins are not rate limited")
		store = session.NewMemoryStore(cfg.Session.TTL)
		cat = catalog.New(backend, nil, cfg.Catalog.CacheTTL)
	}

	uploads := upload.NewManager(backend, upload.Options{
		Presign: cfg.Upload.Presign,
		Tick:    cfg.Upload.Tick,
		Step:    cfg.Upload.Step,
		Retain:  cfg.Upload.Retain,
	}, web.UploadCompletion(store))

	opts := []session.Option{session.WithVerifier(backend), session.WithReconciler(uploads.Reconcile)}
	if cfg.Geo.IPLookupURL != "" {
		opts = append(opts, session.WithLocator(geo.NewLocator(cfg.Geo.IPLookupURL)))
	}
	sessions := session.NewManager(store, auth.NewMiddleware(cfg.Session.JWTSecret),
		cfg.Session.CookieName, cfg.Session.TTL, cfg.Session.Secure, opts...)

	if err := cat.Load(ctx); err != nil {
		slog.Warn("Catalogue unavailable at start-up", "error", err)
	}
	if err := cat.Start(cfg.Catalog.Refresh); err != nil {
		return fmt.Errorf("scheduling catalogue refresh: %w", err)
	}
	defer cat.Stop()

	var mailer *email.Service
	if cfg.Email.Enabled {
		mailer = email.NewService(cfg.Email.URL)
	}

	handler := web.NewServer(cfg, web.Deps{
		Sessions: sessions,
		Backend:  backend,
		Catalog:  cat,
		Geocoder: geo.NewGeocoder(cfg.Geo),
		Uploads:  uploads,
		Email:    mailer,
		Limiter:  limiter,
		Health:   health,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// A listener failure and a signal both end in the same shutdown.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// Running uploads get until the shutdown deadline, then are interrupted.
		finished := make(chan struct{})
		go func() {
			uploads.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-shutdownCtx.Done():
		}
		uploads.Close()
		return nil
	})
	return g.Wait()
}
