package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cardexhq/cardex/backend/config"
	"github.com/cardexhq/cardex/backend/middleware"
	"github.com/cardexhq/cardex/backend/utils"
	"github.com/cardexhq/cardex/cardex/database"
	"github.com/cardexhq/cardex/cardex/database/models"
	"github.com/cardexhq/cardex/cardex/database/repositories"
	"github.com/cardexhq/cardex/cardex/services"
	"github.com/cardexhq/cardex/cardex/trading"
)

// WebApp represents the web application with all dependencies
type WebApp struct {
	Config     *config.WebAppConfig
	DB         *database.DB
	Manager    *trading.Manager
	Query      *trading.QueryService
	Reconciler *trading.ExpiryReconciler
	Accounts   *services.AccountService
	Sessions   *services.SessionService
	Catalog    *services.CatalogService
	Store      *services.StoreService
	Spaces     *services.SpacesService
	Users      repositories.UserRepository
	UserCards  repositories.UserCardRepository
	Version    string
}

// SetupRoutes registers the full API surface.
func (w *WebApp) SetupRoutes(app *fiber.App) {
	api := app.Group("/api", middleware.APIRateLimit())

	api.Get("/health", w.HandleHealth)

	auth := api.Group("/auth", middleware.AuthRateLimit())
	auth.Post("/register", w.HandleRegister)
	auth.Post("/login", w.HandleLogin)
	auth.Post("/logout", middleware.AuthRequired(w.Sessions), w.HandleLogout)

	// Every trade route passes the expiry gate so overdue open trades are
	// flipped before they can be listed or acted on.
	trade := api.Group("/trade",
		middleware.AuthRequired(w.Sessions),
		middleware.ExpiryGate(w.Reconciler))
	trade.Post("/create", w.HandleCreateTrade)
	trade.Get("/all", w.HandleListTrades)
	trade.Get("/search", w.HandleSearchTrades)
	trade.Get("/mine", w.HandleMyTrades)
	trade.Get("/:id", w.HandleGetTrade)
	trade.Post("/accept/:id", w.HandleAcceptTrade)
	trade.Delete("/delete/:id", w.HandleCancelTrade)

	user := api.Group("/user", middleware.AuthRequired(w.Sessions))
	user.Get("/me", w.HandleMe)
	user.Get("/cards", w.HandleUserCards)
	user.Get("/cards/search", w.HandleCardSearch)
	user.Get("/cards/double", w.HandleDoubleCards)
	user.Get("/cards/missing", w.HandleMissingCards)
	user.Post("/sell", w.HandleSellCards)
	user.Post("/credits", w.HandleBuyCredits)
	user.Post("/pack", w.HandleOpenPack)
}

// HandleHealth reports service and database health.
func (w *WebApp) HandleHealth(c *fiber.Ctx) error {
	if err := w.DB.Ping(c.Context()); err != nil {
		return utils.SendError(c, fiber.StatusServiceUnavailable, "DB_UNAVAILABLE",
			"database unreachable", nil)
	}
	return utils.SendSuccess(c, fiber.Map{
		"status":  "ok",
		"version": w.Version,
	}, "")
}

// tradeResponse is a trade as serialized to clients.
type tradeResponse struct {
	TradeID        string             `json:"trade_id"`
	Offeror        string             `json:"offeror"`
	Buyer          *string            `json:"buyer,omitempty"`
	OfferedCards   []models.TradeCard `json:"offered_cards"`
	RequestedCards []models.TradeCard `json:"requested_cards"`
	Status         string             `json:"status"`
	Reputation     *float64           `json:"reputation,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	ExpireAt       time.Time          `json:"expire_at"`
}

func newTradeResponse(trade *models.Trade) tradeResponse {
	return tradeResponse{
		TradeID:        trade.TradeID,
		Offeror:        trade.OfferorID,
		Buyer:          trade.BuyerID,
		OfferedCards:   trade.OfferedCards,
		RequestedCards: trade.RequestedCards,
		Status:         string(trade.Status),
		CreatedAt:      trade.CreatedAt,
		ExpireAt:       trade.ExpireAt,
	}
}

func newListingResponse(listing trading.TradeListing) tradeResponse {
	resp := newTradeResponse(listing.Trade)
	rep := listing.Reputation
	resp.Reputation = &rep
	return resp
}
