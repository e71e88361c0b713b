package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cardexhq/cardex/cardex/database/models"
	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Migrator copies the legacy MongoDB backend's data into Postgres: users
// (with their embedded game_cards) and trades. One-shot, idempotent via
// conflict-ignoring inserts; safe to re-run after a partial import.
type Migrator struct {
	pgDB      *bun.DB
	mongoDB   *mongo.Database
	batchSize int
	stats     MigrationStats
	collNames map[string]string
}

func NewMigrator(pgDB *bun.DB, client *mongo.Client, dbName string) *Migrator {
	return &Migrator{
		pgDB:      pgDB,
		mongoDB:   client.Database(dbName),
		batchSize: 1000,
		stats: MigrationStats{
			Tables: make(map[string]*TableStats),
		},
		collNames: map[string]string{
			"users":  "users",
			"trades": "trades",
		},
	}
}

// SetBatchSize overrides the default insert batch size.
func (m *Migrator) SetBatchSize(size int) {
	if size > 0 {
		m.batchSize = size
	}
}

// SetCollectionName overrides a source collection name.
func (m *Migrator) SetCollectionName(kind, name string) {
	if kind != "" && name != "" {
		m.collNames[kind] = name
	}
}

// MigrateAll runs every migration step in dependency order: users first so
// holdings and trades reference existing rows.
func (m *Migrator) MigrateAll(ctx context.Context) error {
	m.stats.StartTime = time.Now()

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"users", m.MigrateUsers},
		{"trades", m.MigrateTrades},
	}

	for _, step := range steps {
		slog.Info("Starting migration step", slog.String("step", step.name))
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("migration failed at step %s: %w", step.name, err)
		}
		slog.Info("Completed migration step", slog.String("step", step.name))
	}

	m.stats.EndTime = time.Now()
	m.logFinalStats()
	return nil
}

// MigrateUsers imports the legacy users collection, splitting each document
// into a users row plus one user_cards row per embedded game card.
func (m *Migrator) MigrateUsers(ctx context.Context) error {
	col := m.mongoDB.Collection(m.collNames["users"])
	cur, err := col.Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query users: %w", err)
	}
	defer cur.Close(ctx)

	stats := m.tableStats("users")
	cardStats := m.tableStats("user_cards")

	seenUsernames := make(map[string]bool)
	var users []*models.User
	var holdings []*models.UserCard

	flush := func() error {
		if len(users) > 0 {
			if err := m.batchInsertUsers(ctx, users); err != nil {
				return err
			}
			stats.Successful += len(users)
			users = users[:0]
		}
		if len(holdings) > 0 {
			if err := m.batchInsertUserCards(ctx, holdings); err != nil {
				return err
			}
			cardStats.Successful += len(holdings)
			holdings = holdings[:0]
		}
		return nil
	}

	for cur.Next(ctx) {
		var mu MongoUser
		if err := cur.Decode(&mu); err != nil {
			stats.Skipped++
			continue
		}
		stats.Processed++

		if mu.Username == "" {
			stats.Skipped++
			continue
		}
		if seenUsernames[mu.Username] {
			stats.Skipped++
			slog.Warn("Duplicate username in legacy data, keeping first",
				slog.String("username", mu.Username))
			continue
		}
		seenUsernames[mu.Username] = true

		user, cards := convertUser(mu)
		users = append(users, user)
		holdings = append(holdings, cards...)
		cardStats.Processed += len(cards)

		if len(users) >= m.batchSize || len(holdings) >= m.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("user cursor failed: %w", err)
	}

	return flush()
}

// MigrateTrades imports the legacy trades collection.
func (m *Migrator) MigrateTrades(ctx context.Context) error {
	col := m.mongoDB.Collection(m.collNames["trades"])
	cur, err := col.Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query trades: %w", err)
	}
	defer cur.Close(ctx)

	stats := m.tableStats("trades")

	var trades []*models.Trade
	for cur.Next(ctx) {
		var mt MongoTrade
		if err := cur.Decode(&mt); err != nil {
			stats.Skipped++
			continue
		}
		stats.Processed++

		if mt.TradeID == "" || mt.Offeror == "" {
			stats.Skipped++
			continue
		}

		trades = append(trades, convertTrade(mt))
		if len(trades) >= m.batchSize {
			if err := m.batchInsertTrades(ctx, trades); err != nil {
				return err
			}
			stats.Successful += len(trades)
			trades = trades[:0]
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("trade cursor failed: %w", err)
	}

	if len(trades) > 0 {
		if err := m.batchInsertTrades(ctx, trades); err != nil {
			return err
		}
		stats.Successful += len(trades)
	}
	return nil
}

func (m *Migrator) batchInsertUsers(ctx context.Context, users []*models.User) error {
	_, err := m.pgDB.NewInsert().
		Model(&users).
		On("CONFLICT (username) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert users batch: %w", err)
	}
	return nil
}

func (m *Migrator) batchInsertUserCards(ctx context.Context, holdings []*models.UserCard) error {
	_, err := m.pgDB.NewInsert().
		Model(&holdings).
		On("CONFLICT (user_id, card_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert user cards batch: %w", err)
	}
	return nil
}

func (m *Migrator) batchInsertTrades(ctx context.Context, trades []*models.Trade) error {
	_, err := m.pgDB.NewInsert().
		Model(&trades).
		On("CONFLICT (trade_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert trades batch: %w", err)
	}
	return nil
}

func (m *Migrator) tableStats(name string) *TableStats {
	if m.stats.Tables[name] == nil {
		m.stats.Tables[name] = &TableStats{TableName: name}
	}
	return m.stats.Tables[name]
}

func (m *Migrator) logFinalStats() {
	for _, ts := range m.stats.Tables {
		slog.Info("Migration table summary",
			slog.String("table", ts.TableName),
			slog.Int("processed", ts.Processed),
			slog.Int("imported", ts.Successful),
			slog.Int("skipped", ts.Skipped))
	}
	slog.Info("Migration completed",
		slog.Duration("took", m.stats.EndTime.Sub(m.stats.StartTime)))
}
