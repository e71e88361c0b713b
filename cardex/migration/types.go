package migration

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoGameCard is one held card embedded in the legacy user document.
type MongoGameCard struct {
	CardID   string    `bson:"card_id"`
	Quantity int32     `bson:"quantity"`
	Obtained time.Time `bson:"obtained"`
}

// MongoUser is a user document from the legacy backend.
type MongoUser struct {
	ID             primitive.ObjectID `bson:"_id"`
	Username       string             `bson:"username"`
	Email          string             `bson:"email"`
	Password       string             `bson:"password"`
	FavoriteWizard string             `bson:"favorite_wizard"`
	Credits        float64            `bson:"credits"` // doubles and ints both occur
	GameCards      []MongoGameCard    `bson:"game_cards"`
	Trades         []string           `bson:"trades"`
	CreatedAt      time.Time          `bson:"created_at"`
}

// MongoTradeCard is one side entry of a legacy trade document.
type MongoTradeCard struct {
	CardID   string `bson:"card_id"`
	Quantity int32  `bson:"quantity"`
}

// MongoTrade is a trade document from the legacy backend.
type MongoTrade struct {
	ID             primitive.ObjectID `bson:"_id"`
	TradeID        string             `bson:"trade_id"`
	Offeror        string             `bson:"offeror"`
	Buyer          *string            `bson:"buyer"`
	OfferedCards   []MongoTradeCard   `bson:"offered_cards"`
	RequestedCards []MongoTradeCard   `bson:"requested_cards"`
	Status         string             `bson:"status"`
	ExpireAt       time.Time          `bson:"expire_at"`
	CreatedAt      time.Time          `bson:"created_at"`
}

// MigrationStats tracks per-collection progress.
type MigrationStats struct {
	StartTime time.Time              `json:"start_time"`
	EndTime   time.Time              `json:"end_time"`
	Tables    map[string]*TableStats `json:"tables"`
}

// TableStats tracks stats for one target table.
type TableStats struct {
	TableName  string `json:"table_name"`
	Processed  int    `json:"processed"`
	Successful int    `json:"successful"`
	Skipped    int    `json:"skipped"`
}
