package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/storage"
)

// TxStore implements storage.TxStore with one key per signature.
type TxStore struct {
	client *Client
	ttl    time.Duration
}

// NewTxStore creates a TxStore. Keys expire after ttl; zero keeps them forever.
func NewTxStore(client *Client, ttl time.Duration) *TxStore {
	return &TxStore{client: client, ttl: ttl}
}

var _ storage.TxStore = (*TxStore)(nil)

// SaveTx stores tx under tx:<signature>, overwriting any previous value.
func (s *TxStore) SaveTx(ctx context.Context, tx *domain.TxNotification) error {
	if tx == nil || tx.Signature == "" {
		return storage.ErrInvalidInput
	}

	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal tx %s: %w", tx.Signature, err)
	}
	if err := s.client.Set(ctx, txPrefix+tx.Signature, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save tx %s: %w", tx.Signature, err)
	}
	return nil
}

// RecentTx returns up to limit most recent notifications ordered by ReceivedAt ASC.
// Malformed values are skipped.
func (s *TxStore) RecentTx(ctx context.Context, limit int) ([]*domain.TxNotification, error) {
	keys, err := s.client.Keys(ctx, txPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("list tx keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.mget(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load tx: %w", err)
	}

	result := make([]*domain.TxNotification, 0, len(values))
	for _, v := range values {
		var tx domain.TxNotification
		if err := json.Unmarshal([]byte(v), &tx); err != nil || tx.Signature == "" {
			continue
		}
		result = append(result, &tx)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ReceivedAt != result[j].ReceivedAt {
			return result[i].ReceivedAt < result[j].ReceivedAt
		}
		return result[i].Signature < result[j].Signature
	})
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}
