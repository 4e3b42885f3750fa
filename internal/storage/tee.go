package storage

import (
	"context"
	"errors"

	"solana-copy-bot/internal/domain"
)

// TeeLogStore writes to a primary LogStore and copies bot entries to sinks.
// Reads come from the primary only.
type TeeLogStore struct {
	LogStore
	sinks []BotLogSink
}

// Tee wraps primary so bot entries also reach every sink.
func Tee(primary LogStore, sinks ...BotLogSink) *TeeLogStore {
	return &TeeLogStore{LogStore: primary, sinks: sinks}
}

// AppendBotLog stores e in the primary and every sink. All writes are
// attempted; their errors are joined.
func (t *TeeLogStore) AppendBotLog(ctx context.Context, e *domain.LogEntry) error {
	errs := []error{t.LogStore.AppendBotLog(ctx, e)}
	for _, s := range t.sinks {
		errs = append(errs, s.AppendBotLog(ctx, e))
	}
	return errors.Join(errs...)
}
