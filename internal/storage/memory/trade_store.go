package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeRecord // keyed by trade_id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.TradeRecord),
	}
}

// InsertTrade adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) InsertTrade(_ context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" || t.BotID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.TradeID] = &copy
	return nil
}

// ListTrades returns up to limit trades of a bot, newest first.
func (s *TradeStore) ListTrades(_ context.Context, botID string, limit int) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, t := range s.data {
		if t.BotID == botID {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp > result[j].Timestamp
		}
		return result[i].TradeID < result[j].TradeID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
