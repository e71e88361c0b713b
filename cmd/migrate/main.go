package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/cardexhq/cardex/cardex"
	"github.com/cardexhq/cardex/cardex/database"
	"github.com/cardexhq/cardex/cardex/logger"
	"github.com/cardexhq/cardex/cardex/migration"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfgPath := flag.String("config", "config.toml", "path to config file")
	mongoURI := flag.String("mongo-uri", "mongodb://localhost:27017", "legacy MongoDB connection URI")
	mongoDB := flag.String("mongo-db", "cardex", "legacy MongoDB database name")
	batchSize := flag.Int("batch-size", 1000, "insert batch size")
	flag.Parse()

	slog.SetDefault(slog.New(logger.NewHandler(slog.LevelInfo)))

	ctx := context.Background()

	cfg, err := cardex.LoadConfig(*cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize schema", "error", err)
		os.Exit(1)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(*mongoURI))
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect(ctx)

	if err := client.Ping(ctx, nil); err != nil {
		slog.Error("Failed to reach MongoDB", "error", err)
		os.Exit(1)
	}

	migrator := migration.NewMigrator(db.BunDB(), client, *mongoDB)
	migrator.SetBatchSize(*batchSize)

	if err := migrator.MigrateAll(ctx); err != nil {
		slog.Error("Migration failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Migration completed successfully!")
}
