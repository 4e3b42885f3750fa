package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/storage"
)

// TxStore is an in-memory implementation of storage.TxStore.
type TxStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TxNotification // keyed by signature
}

// NewTxStore creates a new in-memory transaction store.
func NewTxStore() *TxStore {
	return &TxStore{data: make(map[string]*domain.TxNotification)}
}

// SaveTx stores tx under its signature, overwriting any previous value.
func (s *TxStore) SaveTx(_ context.Context, tx *domain.TxNotification) error {
	if tx == nil || tx.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *tx
	s.data[tx.Signature] = &copy
	return nil
}

// RecentTx returns up to limit most recent notifications ordered by ReceivedAt ASC.
func (s *TxStore) RecentTx(_ context.Context, limit int) ([]*domain.TxNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TxNotification, 0, len(s.data))
	for _, tx := range s.data {
		copy := *tx
		result = append(result, &copy)
	}
	sortTx(result)

	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func sortTx(txs []*domain.TxNotification) {
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].ReceivedAt != txs[j].ReceivedAt {
			return txs[i].ReceivedAt < txs[j].ReceivedAt
		}
		return txs[i].Signature < txs[j].Signature
	})
}

// LogStore is an in-memory implementation of storage.LogStore.
type LogStore struct {
	mu    sync.RWMutex
	lines []storage.LogLine
}

// NewLogStore creates a new in-memory log store.
func NewLogStore() *LogStore {
	return &LogStore{}
}

// AppendServerLog stores a server line.
func (s *LogStore) AppendServerLog(_ context.Context, ts int64, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, storage.LogLine{Timestamp: ts, Kind: storage.LogKindServer, Text: msg})
	return nil
}

// AppendBotLog stores a bot entry as JSON text.
func (s *LogStore) AppendBotLog(_ context.Context, e *domain.LogEntry) error {
	if e == nil {
		return storage.ErrInvalidInput
	}
	text, err := storage.EncodeBotLog(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, storage.LogLine{Timestamp: e.Timestamp, Kind: storage.LogKindBot, Text: text})
	return nil
}

// RecentLogs returns up to limit most recent lines ordered by timestamp ASC.
func (s *LogStore) RecentLogs(_ context.Context, limit int) ([]storage.LogLine, error) {
	s.mu.RLock()
	result := append([]storage.LogLine(nil), s.lines...)
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool { return result[i].Timestamp < result[j].Timestamp })
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

var (
	_ storage.TxStore  = (*TxStore)(nil)
	_ storage.LogStore = (*LogStore)(nil)
)
