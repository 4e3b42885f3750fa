package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/storage"
)

// BotStore is an in-memory implementation of storage.BotStore.
type BotStore struct {
	mu      sync.RWMutex
	bots    map[string]*domain.Bot    // keyed by bot id
	wallets map[string]*domain.Wallet // keyed by address
}

// NewBotStore creates a new in-memory bot store.
func NewBotStore() *BotStore {
	return &BotStore{
		bots:    make(map[string]*domain.Bot),
		wallets: make(map[string]*domain.Wallet),
	}
}

// CreateBot adds a new bot. Returns ErrDuplicateKey if the id exists.
func (s *BotStore) CreateBot(_ context.Context, b *domain.Bot) error {
	if b == nil || b.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bots[b.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.bots[b.ID] = copyBot(b)
	return nil
}

// GetBot retrieves a bot by its ID. Returns ErrNotFound if not exists.
func (s *BotStore) GetBot(_ context.Context, botID string) (*domain.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.bots[botID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyBot(b), nil
}

// ListBots retrieves the bots of a user, or all bots, ordered by created_at ASC.
func (s *BotStore) ListBots(_ context.Context, userID string) ([]*domain.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Bot
	for _, b := range s.bots {
		if userID == "" || b.UserID == userID {
			result = append(result, copyBot(b))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// UpdateBotSettings applies the non-nil settings. Returns ErrNotFound if the
// bot does not exist.
func (s *BotStore) UpdateBotSettings(_ context.Context, botID string, set domain.BotSettings) (*domain.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.bots[botID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	if set.PriorityFeeLamports != nil {
		b.PriorityFeeLamports = *set.PriorityFeeLamports
	}
	if set.BuyRatio != nil {
		b.BuyRatio = *set.BuyRatio
	}
	if set.EjectWalletAddress != nil {
		w := s.resolveLocked(*set.EjectWalletAddress)
		b.EjectWallet = &domain.Wallet{ID: w.ID, Address: w.Address}
	}
	b.UpdatedAt = time.Now().UnixMilli()

	return copyBot(b), nil
}

// ResolveWallet returns the wallet for address, creating it when missing.
func (s *BotStore) ResolveWallet(_ context.Context, address string) (*domain.Wallet, error) {
	if address == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.resolveLocked(address)
	return &domain.Wallet{ID: w.ID, Address: w.Address}, nil
}

func (s *BotStore) resolveLocked(address string) *domain.Wallet {
	if w, ok := s.wallets[address]; ok {
		return w
	}
	w := &domain.Wallet{ID: uuid.NewString(), Address: address}
	s.wallets[address] = w
	return w
}

func copyBot(b *domain.Bot) *domain.Bot {
	c := *b
	if b.EjectWallet != nil {
		w := *b.EjectWallet
		c.EjectWallet = &w
	}
	if b.Trader != nil {
		t := *b.Trader
		c.Trader = &t
	}
	if b.Strategy != nil {
		st := *b.Strategy
		c.Strategy = &st
	}
	return &c
}

var _ storage.BotStore = (*BotStore)(nil)
