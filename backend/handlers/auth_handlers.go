package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cardexhq/cardex/backend/utils"
)

type registerRequest struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	FavoriteWizard string `json:"favorite_wizard"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// HandleRegister creates an account and logs it in.
func (w *WebApp) HandleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendBadRequest(c, "Invalid request body", nil)
	}

	user, token, err := w.Accounts.Register(c.Context(), req.Username, req.Email, req.Password, req.FavoriteWizard)
	if err != nil {
		return utils.SendBadRequest(c, err.Error(), nil)
	}

	return utils.SendCreated(c, authResponse{
		UserID:   user.ID,
		Username: user.Username,
		Token:    token,
	}, "Account created")
}

// HandleLogin verifies credentials and issues a session token.
func (w *WebApp) HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendBadRequest(c, "Invalid request body", nil)
	}

	user, token, err := w.Accounts.Login(c.Context(), req.Username, req.Password)
	if err != nil {
		return utils.SendUnauthorized(c, "Invalid credentials")
	}

	return utils.SendSuccess(c, authResponse{
		UserID:   user.ID,
		Username: user.Username,
		Token:    token,
	}, "Logged in")
}

// HandleLogout revokes the current session token.
func (w *WebApp) HandleLogout(c *fiber.Ctx) error {
	if token, ok := c.Locals("session_token").(string); ok {
		w.Accounts.Logout(token)
	}
	return utils.SendSuccess(c, nil, "Logged out")
}
