package memory

import (
	"context"
	"sync"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/storage"
)

// KeyStore is an in-memory implementation of storage.KeyStore.
type KeyStore struct {
	mu   sync.RWMutex
	data map[string]domain.Keypair // keyed by bot id
}

// NewKeyStore creates a new in-memory key store.
func NewKeyStore() *KeyStore {
	return &KeyStore{data: make(map[string]domain.Keypair)}
}

// SaveKeypair stores the keypair of a bot. Returns ErrDuplicateKey if one exists.
func (s *KeyStore) SaveKeypair(_ context.Context, botID string, kp *domain.Keypair) error {
	if botID == "" || kp == nil || kp.PublicKey == "" || kp.SecretKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[botID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[botID] = *kp
	return nil
}

// GetKeypair retrieves the keypair of a bot. Returns ErrNotFound if not exists.
func (s *KeyStore) GetKeypair(_ context.Context, botID string) (*domain.Keypair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kp, exists := s.data[botID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return &kp, nil
}

var _ storage.KeyStore = (*KeyStore)(nil)
