// StreamingPlus - pay-per-view live stream storefront
// Optimized for shared hosting with limited resources
package main

import (
	"context"
	"os"
	"runtime"
	"time"

	"streamingplus/internal/access"
	"streamingplus/internal/cache"
	"streamingplus/internal/config"
	"streamingplus/internal/domain"
	"streamingplus/internal/domain/cast"
	"streamingplus/internal/domain/notifications"
	"streamingplus/internal/domain/payments"
	"streamingplus/internal/logging"
	"streamingplus/internal/repository"
	"streamingplus/internal/repository/sqlite"
	"streamingplus/internal/server"
	"streamingplus/internal/templates"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	// Limit CPU usage for shared hosting
	runtime.GOMAXPROCS(1)

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		bootLogger := logging.New("info", false, os.Stderr)
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logging.New(cfg.Log.Level, cfg.Debug, os.Stderr)
	logger.Info().Str("site", cfg.Site.Name).Bool("debug", cfg.Debug).Msg("Starting")

	// Initialize database
	db, err := sqlite.New(cfg.GetDatabasePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}
	logger.Info().Str("path", cfg.GetDatabasePath()).Msg("Database initialized")

	repos := sqlite.NewRepositories(db)

	if os.Getenv("SEED_DATA") == "true" {
		if err := createSampleData(context.Background(), repos, logger); err != nil {
			logger.Warn().Err(err).Msg("Could not create sample data")
		}
	}

	tmpl, err := templates.NewManager("", cfg.Debug)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize templates")
	}

	adminHash, err := cfg.AdminPasswordHash()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to prepare admin credentials")
	}
	if cfg.Admin.PasswordHash == "" {
		logger.Warn().
			Str("username", cfg.Admin.Username).
			Str("password", config.DevAdminPassword).
			Msg("Using development admin password, set ADMIN_PASSWORD_HASH in production")
	}

	ledger := access.NewLedger(repos.Purchases, logger)
	clock := access.SystemClock{}

	srv := server.New(cfg, server.Deps{
		Repos:             repos,
		Ledger:            ledger,
		Evaluator:         access.NewEvaluator(ledger),
		Checkout:          payments.NewCheckout(payments.NewSimulatedGateway(), clock, logger),
		Notifier:          notifications.NewEmailNotifier(emailProvider(cfg, logger)),
		Templates:         tmpl,
		Cast:              cast.NewSimulatedTarget(logger),
		Revocations:       revocationStore(cfg, logger),
		Clock:             clock,
		AdminPasswordHash: adminHash,
		Logger:            logger,
	})

	if err := srv.Run(); err != nil {
		logger.Fatal().Err(err).Msg("Server error")
	}
}

func emailProvider(cfg *config.Config, logger zerolog.Logger) notifications.EmailProvider {
	if cfg.SMTP.Host == "" {
		logger.Warn().Msg("SMTP not configured, emails will only be logged")
		return notifications.NewLogEmailProvider(logger)
	}
	return notifications.NewSMTPProvider(notifications.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	}, logger)
}

// revocationStore prefers Redis so logouts survive restarts and hold across replicas
func revocationStore(cfg *config.Config, logger zerolog.Logger) cache.SessionRevocationStore {
	if cfg.Redis.URL == "" {
		return cache.NewMemorySessionRevocationStore()
	}

	client, err := cache.Connect(context.Background(), cfg.Redis.URL)
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, keeping revoked sessions in memory")
		return cache.NewMemorySessionRevocationStore()
	}
	logger.Info().Msg("Redis connected")
	return cache.NewRedisSessionRevocationStore(client)
}

// createSampleData adds a free and a paid banner when the catalog is empty
func createSampleData(ctx context.Context, repos *repository.Repositories, logger zerolog.Logger) error {
	existing, err := repos.Banners.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	now := time.Now().UTC()
	samples := []domain.Banner{
		{
			Title:          "Abertura do Festival",
			Price:          decimal.Zero,
			StreamURL:      "https://streams.example.com/abertura/index.m3u8",
			StartDate:      now.Add(-time.Hour),
			ExpirationDate: now.AddDate(0, 0, 7),
			Active:         true,
		},
		{
			Title:          "Final do Campeonato",
			Price:          decimal.RequireFromString("29.90"),
			StreamURL:      "https://streams.example.com/final/index.m3u8",
			StartDate:      now.Add(-time.Hour),
			ExpirationDate: now.AddDate(0, 0, 3),
			Active:         true,
		},
	}

	for i := range samples {
		if err := repos.Banners.Create(ctx, &samples[i]); err != nil {
			return err
		}
	}

	logger.Info().Int("banners", len(samples)).Msg("Sample data created")
	return nil
}
