package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-engine/pkg/config"
	"github.com/cardhaven/cardhaven-engine/pkg/database"
	"github.com/cardhaven/cardhaven-engine/pkg/handlers"
	"github.com/cardhaven/cardhaven-engine/pkg/middleware"
	"github.com/cardhaven/cardhaven-engine/pkg/query"
	"github.com/cardhaven/cardhaven-engine/pkg/repositories"
	"github.com/cardhaven/cardhaven-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("database", cfg.Database.Database),
		zap.String("data_dir", cfg.Ingest.DataDir))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Migrations run through database/sql (required by golang-migrate).
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	// Repositories
	gameRepo := repositories.NewGameRepository()
	cardRepo := repositories.NewCardRepository()
	attributeRepo := repositories.NewAttributeRepository()
	outputRepo := repositories.NewCardOutputRepository()

	// Services
	ingestService := services.NewIngestService(db, gameRepo, cardRepo, attributeRepo, cfg.Ingest, logger)
	queryService := services.NewCardQueryService(db, attributeRepo, outputRepo, query.NewParser(logger), logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewCardsHandler(queryService, logger).RegisterRoutes(mux)
	handlers.NewImportHandler(cfg, ingestService, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting cardhaven-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// newLogger builds a development logger locally and a production logger
// everywhere else.
func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
