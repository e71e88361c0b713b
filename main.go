package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/cardexhq/cardex/backend/config"
	"github.com/cardexhq/cardex/backend/handlers"
	"github.com/cardexhq/cardex/backend/middleware"
	"github.com/cardexhq/cardex/cardex"
	"github.com/cardexhq/cardex/cardex/database"
	"github.com/cardexhq/cardex/cardex/database/repositories"
	"github.com/cardexhq/cardex/cardex/logger"
	"github.com/cardexhq/cardex/cardex/services"
	"github.com/cardexhq/cardex/cardex/trading"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	path := flag.String("config", "config.toml", "path to config")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(logger.NewHandler(level)))

	slog.Info("Starting Cardex",
		slog.String("version", version),
		slog.String("commit", commit))

	cfg, err := cardex.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	if !*debug {
		slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dbStartTime := time.Now()
	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("error", err.Error()))
		os.Exit(-1)
	}
	slog.Info("Database ready",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	// Repositories
	userRepo := repositories.NewUserRepository(db.BunDB())
	userCardRepo := repositories.NewUserCardRepository(db.BunDB())
	cardRepo := repositories.NewCardRepository(db.BunDB())
	tradeRepo := repositories.NewTradeRepository(db.BunDB())

	// Services
	catalog := services.NewCatalogService(cardRepo, cfg.Catalog.SourceURL)
	if err := catalog.EnsureImported(ctx); err != nil {
		// Non-fatal: account creation retries the import lazily.
		slog.Warn("Catalog import deferred", slog.String("error", err.Error()))
	}

	sessions := services.NewSessionService(cfg.Server.SessionTTL.Std())
	accounts := services.NewAccountService(userRepo, userCardRepo, catalog, sessions)
	store := services.NewStoreService(userCardRepo, userRepo, catalog, cfg.Catalog.PackSize, cfg.Catalog.PackCost)

	var spaces *services.SpacesService
	if cfg.Spaces.Key != "" {
		spaces, err = services.NewSpacesService(
			cfg.Spaces.Key,
			cfg.Spaces.Secret,
			cfg.Spaces.Region,
			cfg.Spaces.Bucket,
			cfg.Spaces.CardRoot,
		)
		if err != nil {
			slog.Error("Failed to initialize Spaces", slog.Any("error", err))
			os.Exit(-1)
		}
	}

	// Trading engine
	manager := trading.NewManager(tradeRepo, userCardRepo, userRepo)
	query := trading.NewQueryService(tradeRepo, cardRepo)
	reconciler := trading.NewExpiryReconciler(tradeRepo, cfg.Server.SweepInterval.Std())
	reconciler.Start()
	defer reconciler.Shutdown()

	webApp := &handlers.WebApp{
		Config:     config.NewWebAppConfig(cfg, *debug),
		DB:         db,
		Manager:    manager,
		Query:      query,
		Reconciler: reconciler,
		Accounts:   accounts,
		Sessions:   sessions,
		Catalog:    catalog,
		Store:      store,
		Spaces:     spaces,
		Users:      userRepo,
		UserCards:  userCardRepo,
		Version:    version,
	}

	app := fiber.New(fiber.Config{
		AppName:      "Cardex API",
		ServerHeader: "Cardex",
		ErrorHandler: middleware.CustomErrorHandler,
	})
	app.Use(recover.New())
	app.Use(middleware.SecurityHeaders())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000,http://localhost:8080",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(middleware.LoggingMiddleware())
	webApp.SetupRoutes(app)

	go func() {
		if err := app.Listen(cfg.Server.Addr); err != nil {
			slog.Error("HTTP server failed", slog.Any("error", err))
			os.Exit(-1)
		}
	}()

	slog.Info("Cardex is running. Press CTRL-C to exit.",
		slog.String("addr", cfg.Server.Addr))
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s

	slog.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", slog.Any("error", err))
	}
}
