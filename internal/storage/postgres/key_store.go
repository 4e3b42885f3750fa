package postgres

import (
	"context"
	"fmt"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/storage"
)

// KeyStore implements storage.KeyStore using PostgreSQL.
type KeyStore struct {
	pool *Pool
}

// NewKeyStore creates a new KeyStore.
func NewKeyStore(pool *Pool) *KeyStore {
	return &KeyStore{pool: pool}
}

var _ storage.KeyStore = (*KeyStore)(nil)

// SaveKeypair stores the keypair of a bot. Returns ErrDuplicateKey if one
// exists and ErrNotFound if the bot does not.
func (s *KeyStore) SaveKeypair(ctx context.Context, botID string, kp *domain.Keypair) error {
	if botID == "" || kp == nil || kp.PublicKey == "" || kp.SecretKey == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO bot_keypairs (bot_id, public_key, secret_key) VALUES ($1, $2, $3)`,
		botID, kp.PublicKey, kp.SecretKey,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("bot %s: %w", botID, storage.ErrNotFound)
		}
		return fmt.Errorf("insert keypair: %w", err)
	}
	return nil
}

// GetKeypair retrieves the keypair of a bot. Returns ErrNotFound if not exists.
func (s *KeyStore) GetKeypair(ctx context.Context, botID string) (*domain.Keypair, error) {
	var kp domain.Keypair
	err := s.pool.QueryRow(ctx,
		`SELECT public_key, secret_key FROM bot_keypairs WHERE bot_id = $1`,
		botID,
	).Scan(&kp.PublicKey, &kp.SecretKey)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get keypair: %w", err)
	}
	return &kp, nil
}
