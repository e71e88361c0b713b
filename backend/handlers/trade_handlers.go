package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cardexhq/cardex/backend/utils"
	"github.com/cardexhq/cardex/cardex/database/models"
)

const defaultTradeLifetime = 72 * time.Hour

type createTradeRequest struct {
	OfferedCards   []string `json:"offered_cards"`
	RequestedCards []string `json:"requested_cards"`
	ExpiresInHours int      `json:"expires_in_hours"`
}

// HandleCreateTrade opens a new trade offer.
func (w *WebApp) HandleCreateTrade(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Not authenticated")
	}

	var req createTradeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendBadRequest(c, "Invalid request body", nil)
	}

	lifetime := defaultTradeLifetime
	if req.ExpiresInHours > 0 {
		lifetime = time.Duration(req.ExpiresInHours) * time.Hour
	}

	trade, err := w.Manager.CreateTrade(c.Context(), userID,
		toTradeCards(req.OfferedCards),
		toTradeCards(req.RequestedCards),
		time.Now().Add(lifetime))
	if err != nil {
		return utils.SendTradingError(c, err)
	}

	return utils.SendCreated(c, newTradeResponse(trade), "Trade created")
}

// HandleListTrades lists every open trade offered by other users.
func (w *WebApp) HandleListTrades(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Not authenticated")
	}

	listings, err := w.Query.ListOpenTrades(c.Context(), userID, c.Query("sort"))
	if err != nil {
		return utils.SendTradingError(c, err)
	}

	out := make([]tradeResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, newListingResponse(l))
	}
	return utils.SendSuccess(c, out, "")
}

// HandleSearchTrades filters open trades by card name; a leading "!"
// inverts the match.
func (w *WebApp) HandleSearchTrades(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Not authenticated")
	}

	listings, err := w.Query.SearchTrades(c.Context(), userID, c.Query("q"), c.Query("sort"))
	if err != nil {
		return utils.SendTradingError(c, err)
	}

	out := make([]tradeResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, newListingResponse(l))
	}
	return utils.SendSuccess(c, out, "")
}

// HandleMyTrades lists the caller's own trades, any status.
func (w *WebApp) HandleMyTrades(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Not authenticated")
	}

	trades, err := w.Query.GetUserTrades(c.Context(), userID)
	if err != nil {
		return utils.SendTradingError(c, err)
	}

	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, newTradeResponse(t))
	}
	return utils.SendSuccess(c, out, "")
}

// HandleGetTrade returns one trade by id.
func (w *WebApp) HandleGetTrade(c *fiber.Ctx) error {
	trade, err := w.Query.GetTrade(c.Context(), c.Params("id"))
	if err != nil {
		return utils.SendTradingError(c, err)
	}
	return utils.SendSuccess(c, newTradeResponse(trade), "")
}

// HandleAcceptTrade settles a trade into the caller's favor.
func (w *WebApp) HandleAcceptTrade(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Not authenticated")
	}

	trade, err := w.Manager.AcceptTrade(c.Context(), c.Params("id"), userID)
	if err != nil {
		return utils.SendTradingError(c, err)
	}
	return utils.SendSuccess(c, newTradeResponse(trade), "Trade completed")
}

// HandleCancelTrade cancels the caller's own open trade.
func (w *WebApp) HandleCancelTrade(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Not authenticated")
	}

	if err := w.Manager.CancelTrade(c.Context(), c.Params("id"), userID); err != nil {
		return utils.SendTradingError(c, err)
	}
	return utils.SendSuccess(c, nil, "Trade cancelled")
}

func toTradeCards(ids []string) []models.TradeCard {
	cards := make([]models.TradeCard, len(ids))
	for i, id := range ids {
		cards[i] = models.TradeCard{CardID: id, Quantity: 1}
	}
	return cards
}
