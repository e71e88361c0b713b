package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"log/slog"

	"github.com/cardexhq/cardex/cardex/database/models"
	"github.com/cardexhq/cardex/cardex/database/repositories"
	"github.com/cardexhq/cardex/cardex/logger"
	"github.com/google/uuid"
)

const starterDeckSize = 3

// AccountService handles registration and login. Tokens come from the
// session service; the catalog provides the starter deck dealt to new
// users.
type AccountService struct {
	users    repositories.UserRepository
	ledger   repositories.UserCardRepository
	catalog  *CatalogService
	sessions *SessionService
}

func NewAccountService(users repositories.UserRepository, ledger repositories.UserCardRepository, catalog *CatalogService, sessions *SessionService) *AccountService {
	return &AccountService{
		users:    users,
		ledger:   ledger,
		catalog:  catalog,
		sessions: sessions,
	}
}

// Register creates an account and deals the starter deck. Returns the new
// user and a fresh session token.
func (a *AccountService) Register(ctx context.Context, username, email, password, favoriteWizard string) (*models.User, string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" {
		return nil, "", fmt.Errorf("username and email are required")
	}
	if len(password) < 6 {
		return nil, "", fmt.Errorf("password must be at least 6 characters")
	}

	if _, err := a.users.GetByUsername(ctx, username); err == nil {
		return nil, "", fmt.Errorf("username %s is taken", username)
	} else if !repositories.IsNotFound(err) {
		return nil, "", err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, "", err
	}

	user := &models.User{
		ID:             uuid.NewString(),
		Username:       username,
		Email:          email,
		PasswordHash:   hash,
		FavoriteWizard: favoriteWizard,
		Trades:         []string{},
	}
	if err := a.users.Create(ctx, user); err != nil {
		return nil, "", err
	}

	a.dealStarterDeck(ctx, user.ID)

	logger.LogSystem("User registered", slog.String("user_id", user.ID))
	return user, a.sessions.Issue(user.ID), nil
}

// Login verifies credentials and issues a session token.
func (a *AccountService) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	user, err := a.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, "", fmt.Errorf("invalid credentials")
		}
		return nil, "", err
	}

	if !verifyPassword(user.PasswordHash, password) {
		return nil, "", fmt.Errorf("invalid credentials")
	}

	return user, a.sessions.Issue(user.ID), nil
}

// Logout revokes the session token.
func (a *AccountService) Logout(token string) {
	a.sessions.Revoke(token)
}

// dealStarterDeck grants a few random cards so a new collection is never
// empty. Failure is logged but does not fail registration; the catalog may
// simply not be imported yet.
func (a *AccountService) dealStarterDeck(ctx context.Context, userID string) {
	if err := a.catalog.EnsureImported(ctx); err != nil {
		logger.LogError("Starter deck skipped: catalog unavailable", err,
			slog.String("user_id", userID))
		return
	}

	drawn, err := a.catalog.RandomCards(ctx, starterDeckSize)
	if err != nil {
		logger.LogError("Starter deck draw failed", err, slog.String("user_id", userID))
		return
	}

	amounts := make(map[string]int64)
	order := make([]string, 0, len(drawn))
	for _, card := range drawn {
		if _, seen := amounts[card.ID]; !seen {
			order = append(order, card.ID)
		}
		amounts[card.ID]++
	}
	deltas := make([]repositories.CardDelta, 0, len(order))
	for _, id := range order {
		deltas = append(deltas, repositories.CardDelta{CardID: id, Delta: amounts[id]})
	}

	if err := a.ledger.AdjustMany(ctx, userID, deltas, true); err != nil {
		logger.LogError("Starter deck grant failed", err, slog.String("user_id", userID))
	}
}

// hashPassword produces "salt$hash" with a random salt.
func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	sum := sha256.Sum256(append(salt, []byte(password)...))
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(sum[:]), nil
}

func verifyPassword(stored, password string) bool {
	parts := strings.SplitN(stored, "$", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}

	sum := sha256.Sum256(append(salt, []byte(password)...))
	return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(parts[1])) == 1
}
