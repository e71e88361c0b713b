package trading

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/cardexhq/cardex/cardex/database/repositories"
)

const (
	tradeIDPrefix = "TR"
	idMaxRetries  = 5
)

// generateTradeID creates a short unique trade id. Uniqueness is verified
// against the store with a bounded retry; the unique column constraint is
// the final arbiter under concurrent creation.
func (m *Manager) generateTradeID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < idMaxRetries; attempt++ {
		id, err := candidateTradeID()
		if err != nil {
			return "", fmt.Errorf("failed to generate candidate id: %w", err)
		}

		_, err = m.trades.GetByTradeID(ctx, id)
		if repositories.IsNotFound(err) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("failed to generate unique trade id after %d attempts", idMaxRetries)
}

func candidateTradeID() (string, error) {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return tradeIDPrefix + base36encode(bytes), nil
}

func base36encode(bytes []byte) string {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	result := ""
	number := binary.BigEndian.Uint64(bytes)

	for len(result) < 10 {
		result = string(alphabet[number%36]) + result
		number /= 36
	}

	return result
}
