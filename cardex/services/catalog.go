package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/cardexhq/cardex/cardex/database/models"
	"github.com/cardexhq/cardex/cardex/database/repositories"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/errgroup"

	"github.com/cardexhq/cardex/cardex/logger"
)

const (
	catalogCacheSize  = 10000
	importConcurrency = 8
	importTimeout     = 2 * time.Minute
)

// catalogEntry is the wire shape of one card in the external source feed.
type catalogEntry struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	AlternateNames []string `json:"alternate_names"`
	Species        string   `json:"species"`
	House          string   `json:"house"`
	Actor          string   `json:"actor"`
	Image          string   `json:"image"`
}

// cardSearchItems implements fuzzy.Source over searchable card names.
type cardSearchItems []cardSearchItem

type cardSearchItem struct {
	Card *models.Card
	Name string
}

func (items cardSearchItems) Len() int            { return len(items) }
func (items cardSearchItems) String(i int) string { return items[i].Name }

// CatalogService owns the card definition set: one-shot import from the
// external source feed, cached lookups and name search. Card values and
// holdings live elsewhere; this is the reference data only.
type CatalogService struct {
	cards     repositories.CardRepository
	cache     *lru.Cache
	sourceURL string
	client    *http.Client

	importMu sync.Mutex
	imported bool
}

func NewCatalogService(cards repositories.CardRepository, sourceURL string) *CatalogService {
	cache, _ := lru.New(catalogCacheSize)
	return &CatalogService{
		cards:     cards,
		cache:     cache,
		sourceURL: sourceURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// EnsureImported fetches and persists the card catalog if the local set is
// still empty. Called at startup and again lazily from account creation,
// so a boot without network access heals on first use.
func (s *CatalogService) EnsureImported(ctx context.Context) error {
	s.importMu.Lock()
	defer s.importMu.Unlock()

	if s.imported {
		return nil
	}

	count, err := s.cards.GetCardCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to check catalog size: %w", err)
	}
	if count > 0 {
		s.imported = true
		return nil
	}

	if err := s.importFromSource(ctx); err != nil {
		return err
	}
	s.imported = true
	return nil
}

func (s *CatalogService) importFromSource(ctx context.Context) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, importTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.sourceURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build catalog request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch catalog source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog source returned %d", resp.StatusCode)
	}

	var entries []catalogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode catalog source: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(importConcurrency)

	var stored int64
	var storedMu sync.Mutex
	for _, entry := range entries {
		if entry.ID == "" || entry.Name == "" {
			continue
		}
		entry := entry
		g.Go(func() error {
			card := &models.Card{
				ID:             entry.ID,
				Name:           entry.Name,
				AlternateNames: entry.AlternateNames,
				Species:        entry.Species,
				House:          entry.House,
				Actor:          entry.Actor,
				ImageURL:       entry.Image,
			}
			if err := s.cards.Upsert(gctx, card); err != nil {
				return err
			}
			storedMu.Lock()
			stored++
			storedMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to import catalog: %w", err)
	}

	logger.LogSystem("Card catalog imported",
		slog.Int64("cards", stored),
		slog.Duration("took", time.Since(start)))
	return nil
}

// GetCard returns one catalog entry, served from the LRU cache when warm.
func (s *CatalogService) GetCard(ctx context.Context, cardID string) (*models.Card, error) {
	if cached, ok := s.cache.Get(cardID); ok {
		return cached.(*models.Card), nil
	}

	card, err := s.cards.GetByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	s.cache.Add(cardID, card)
	return card, nil
}

// GetCards resolves a batch of ids, mixing cache hits with one repository
// read for the rest.
func (s *CatalogService) GetCards(ctx context.Context, cardIDs []string) (map[string]*models.Card, error) {
	out := make(map[string]*models.Card, len(cardIDs))
	var missing []string
	for _, id := range cardIDs {
		if cached, ok := s.cache.Get(id); ok {
			out[id] = cached.(*models.Card)
		} else {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		cards, err := s.cards.GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, card := range cards {
			out[card.ID] = card
			s.cache.Add(card.ID, card)
		}
	}
	return out, nil
}

// Search finds catalog cards by case-insensitive substring over name and
// alternate names, sorted by name.
func (s *CatalogService) Search(ctx context.Context, query string) ([]*models.Card, error) {
	all, err := s.cards.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return all, nil
	}

	var matched []*models.Card
	for _, card := range all {
		for _, name := range card.DisplayNames() {
			if strings.Contains(strings.ToLower(name), needle) {
				matched = append(matched, card)
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	return matched, nil
}

// Suggest returns up to limit catalog cards fuzzy-ranked against the query,
// for typo-tolerant lookups where substring search comes up empty.
func (s *CatalogService) Suggest(ctx context.Context, query string, limit int) ([]*models.Card, error) {
	all, err := s.cards.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	items := make(cardSearchItems, 0, len(all))
	for _, card := range all {
		for _, name := range card.DisplayNames() {
			items = append(items, cardSearchItem{Card: card, Name: strings.ToLower(name)})
		}
	}

	matches := fuzzy.FindFrom(strings.ToLower(strings.TrimSpace(query)), items)

	seen := make(map[string]struct{})
	var results []*models.Card
	for _, match := range matches {
		card := items[match.Index].Card
		if _, dup := seen[card.ID]; dup {
			continue
		}
		seen[card.ID] = struct{}{}
		results = append(results, card)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// RandomCards draws n cards from the catalog with replacement, for pack
// opening and starter decks.
func (s *CatalogService) RandomCards(ctx context.Context, n int) ([]*models.Card, error) {
	all, err := s.cards.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}

	drawn := make([]*models.Card, n)
	for i := 0; i < n; i++ {
		drawn[i] = all[rand.Intn(len(all))]
	}
	return drawn, nil
}
