package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cardexhq/cardex/backend/utils"
	"github.com/cardexhq/cardex/cardex/database/models"
	"github.com/cardexhq/cardex/cardex/database/repositories"
)

type userCardResponse struct {
	CardID   string `json:"card_id"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	ImageURL string `json:"image_url,omitempty"`
	Value    int64  `json:"value"`
}

// HandleMe returns the caller's profile, holdings summary and reputation.
func (w *WebApp) HandleMe(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Not authenticated")
	}

	user, err := w.Users.GetByID(c.Context(), userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return utils.SendNotFound(c, "User not found")
		}
		return utils.SendInternalServerError(c, "failed to load user")
	}

	reputation, err := w.Query.Reputation(c.Context(), userID)
	if err != nil {
		return utils.SendTradingError(c, err)
	}

	return utils.SendSuccess(c, fiber.Map{
		"user_id":         user.ID,
		"username":        user.Username,
		"email":           user.Email,
		"favorite_wizard": user.FavoriteWizard,
		"balance":         user.Balance,
		"reputation":      reputation,
		"trades":          user.Trades,
	}, "")
}

// HandleUserCards lists the caller's holdings with card details.
func (w *WebApp) HandleUserCards(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Not authenticated")
	}

	holdings, err := w.UserCards.GetAllByUserID(c.Context(), userID)
	if err != nil {
		return utils.SendInternalServerError(c, "failed to load cards")
	}

	return w.sendHoldings(c, holdings)
}

// HandleCardSearch searches the catalog by name, with fuzzy suggestions
// when substring matching comes up empty.
func (w *WebApp) HandleCardSearch(c *fiber.Ctx) error {
	query := c.Query("q")

	cards, err := w.Catalog.Search(c.Context(), query)
	if err != nil {
		return utils.SendInternalServerError(c, "search failed")
	}
	if len(cards) == 0 && query != "" {
		cards, err = w.Catalog.Suggest(c.Context(), query, 10)
		if err != nil {
			return utils.SendInternalServerError(c, "search failed")
		}
	}

	return utils.SendSuccess(c, w.cardResponses(cards), "")
}

// HandleDoubleCards lists cards the caller holds more than one copy of.
func (w *WebApp) HandleDoubleCards(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Not authenticated")
	}

	cards, err := w.Store.DoubleCards(c.Context(), userID)
	if err != nil {
		return utils.SendInternalServerError(c, "failed to load cards")
	}
	return utils.SendSuccess(c, w.cardResponses(cards), "")
}

// HandleMissingCards lists catalog cards the caller does not hold.
func (w *WebApp) HandleMissingCards(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Not authenticated")
	}

	cards, err := w.Store.MissingCards(c.Context(), userID)
	if err != nil {
		return utils.SendInternalServerError(c, "failed to load cards")
	}
	return utils.SendSuccess(c, w.cardResponses(cards), "")
}

type sellRequest struct {
	CardIDs []string `json:"card_ids"`
}

// HandleSellCards liquidates cards for credits.
func (w *WebApp) HandleSellCards(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Not authenticated")
	}

	var req sellRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendBadRequest(c, "Invalid request body", nil)
	}

	credits, err := w.Store.SellCards(c.Context(), userID, req.CardIDs)
	if err != nil {
		if repositories.IsInsufficientQuantity(err) {
			return utils.SendConflict(c, err.Error(), nil)
		}
		if repositories.IsNotFound(err) {
			return utils.SendNotFound(c, err.Error())
		}
		return utils.SendInternalServerError(c, "sale failed")
	}

	return utils.SendSuccess(c, fiber.Map{"credits": credits}, "Cards sold")
}

type buyCreditsRequest struct {
	Amount int64 `json:"amount"`
}

// HandleBuyCredits books a credit purchase.
func (w *WebApp) HandleBuyCredits(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Not authenticated")
	}

	var req buyCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendBadRequest(c, "Invalid request body", nil)
	}

	if err := w.Store.BuyCredits(c.Context(), userID, req.Amount); err != nil {
		return utils.SendBadRequest(c, err.Error(), nil)
	}
	return utils.SendSuccess(c, nil, "Credits added")
}

// HandleOpenPack debits the pack cost and deals random cards.
func (w *WebApp) HandleOpenPack(c *fiber.Ctx) error {
	userID, ok := utils.ExtractUserID(c)
	if !ok {
		return utils.SendUnauthorized(c, "Not authenticated")
	}

	drawn, err := w.Store.OpenPack(c.Context(), userID)
	if err != nil {
		if repositories.IsInsufficientQuantity(err) {
			return utils.SendConflict(c, "insufficient credits", nil)
		}
		return utils.SendInternalServerError(c, "pack opening failed")
	}

	return utils.SendSuccess(c, w.cardResponses(drawn), "Pack opened")
}

func (w *WebApp) sendHoldings(c *fiber.Ctx, holdings []*models.UserCard) error {
	ids := make([]string, 0, len(holdings))
	for _, h := range holdings {
		ids = append(ids, h.CardID)
	}

	cards, err := w.Catalog.GetCards(c.Context(), ids)
	if err != nil {
		return utils.SendInternalServerError(c, "failed to resolve cards")
	}

	out := make([]userCardResponse, 0, len(holdings))
	for _, h := range holdings {
		if h.Quantity <= 0 {
			continue
		}
		resp := userCardResponse{CardID: h.CardID, Quantity: h.Quantity}
		if card, ok := cards[h.CardID]; ok {
			resp.Name = card.Name
			resp.Value = card.Value
			resp.ImageURL = w.imageURL(card)
		}
		out = append(out, resp)
	}
	return utils.SendSuccess(c, out, "")
}

func (w *WebApp) cardResponses(cards []*models.Card) []userCardResponse {
	out := make([]userCardResponse, 0, len(cards))
	for _, card := range cards {
		out = append(out, userCardResponse{
			CardID:   card.ID,
			Name:     card.Name,
			Value:    card.Value,
			ImageURL: w.imageURL(card),
		})
	}
	return out
}

// imageURL prefers the catalog's own image link and falls back to the
// Spaces bucket when configured.
func (w *WebApp) imageURL(card *models.Card) string {
	if card.ImageURL != "" {
		return card.ImageURL
	}
	if w.Spaces != nil {
		return w.Spaces.CardImageURL(card.ID)
	}
	return ""
}
