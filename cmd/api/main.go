package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/joho/godotenv"

	"ecopoints/internal/auth"
	"ecopoints/internal/config"
	transporthttp "ecopoints/internal/http"
	"ecopoints/internal/importer"
	"ecopoints/internal/platform/cache"
	"ecopoints/internal/platform/database"
	"ecopoints/internal/platform/logging"
	"ecopoints/internal/platform/migrate"
	"ecopoints/internal/points"
)

const sessionCleanupInterval = time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	authRepo, pointsRepo, cleanup, err := buildRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize repositories", "error", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	sessions := auth.NewService(authRepo, logger)

	notifier, closeNotifier := buildNotifier(ctx, cfg, logger)
	if closeNotifier != nil {
		defer closeNotifier()
	}
	pointsSvc := points.NewService(pointsRepo, notifier)

	providers, err := buildProviders(ctx, cfg, sessions, logger)
	if err != nil {
		logger.Error("failed to initialize oauth providers", "error", err)
		os.Exit(1)
	}

	dropOffImporter := importer.NewCSVImporter(pointsSvc, authRepo)

	router := transporthttp.NewRouter(cfg, sessions, providers, pointsSvc, dropOffImporter, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go func() {
		logger.Info("EcoPoints API listening", "addr", srv.Addr, "store", cfg.DataStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go cleanupExpiredSessions(ctx, sessions, logger)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func buildRepositories(ctx context.Context, cfg config.Config, logger *slog.Logger) (auth.Repository, points.Repository, func(), error) {
	if cfg.UseInMemoryStore() {
		logger.Info("using in-memory repositories")
		return auth.NewInMemoryRepository(), points.NewInMemoryRepository(), nil, nil
	}

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() {
		_ = db.Close()
	}

	if err := migrate.Apply(ctx, db, logger); err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	logger.Info("connected to postgres")
	return auth.NewPostgresRepository(db), points.NewPostgresRepository(db), cleanup, nil
}

// buildNotifier wires the Redis event publisher when REDIS_URL is set;
// otherwise point movements simply are not broadcast.
func buildNotifier(ctx context.Context, cfg config.Config, logger *slog.Logger) (points.Notifier, func()) {
	if cfg.RedisURL == "" {
		logger.Info("redis not configured; point events disabled")
		return points.NopNotifier{}, nil
	}

	client, err := cache.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable; point events disabled", "error", err)
		return points.NopNotifier{}, nil
	}

	logger.Info("connected to redis")
	return points.NewPublisher(client, logger), func() { _ = client.Close() }
}

func buildProviders(ctx context.Context, cfg config.Config, resolver auth.IdentityResolver, logger *slog.Logger) (map[auth.Provider]auth.ProviderAdapter, error) {
	providers := make(map[auth.Provider]auth.ProviderAdapter)

	if cfg.GoogleEnabled() {
		google, err := auth.NewGoogleProvider(ctx, cfg.Google.ClientID, cfg.Google.ClientSecret, callbackURL(cfg, auth.ProviderGoogle), resolver)
		if err != nil {
			return nil, fmt.Errorf("google provider: %w", err)
		}
		providers[auth.ProviderGoogle] = google
	} else {
		logger.Info("google oauth not configured")
	}

	if cfg.GitHubEnabled() {
		providers[auth.ProviderGitHub] = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, callbackURL(cfg, auth.ProviderGitHub), resolver)
	} else {
		logger.Info("github oauth not configured")
	}

	if cfg.AppleEnabled() {
		key, err := auth.ParseApplePrivateKey([]byte(cfg.Apple.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("apple private key: %w", err)
		}
		providers[auth.ProviderApple] = auth.NewAppleProvider(auth.AppleConfig{
			ClientIDs:   cfg.Apple.ClientIDs,
			TeamID:      cfg.Apple.TeamID,
			KeyID:       cfg.Apple.KeyID,
			PrivateKey:  key,
			RedirectURL: callbackURL(cfg, auth.ProviderApple),
		}, resolver)
	} else {
		logger.Info("apple oauth not configured")
	}

	return providers, nil
}

func callbackURL(cfg config.Config, provider auth.Provider) string {
	return fmt.Sprintf("%s/oauth/%s/callback", cfg.PublicBaseURL, provider)
}

func cleanupExpiredSessions(ctx context.Context, sessions *auth.Service, logger *slog.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := sessions.CleanupExpiredSessions(ctx)
			if err != nil {
				logger.Error("session cleanup failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("expired sessions removed", "count", deleted)
			}
		}
	}
}
