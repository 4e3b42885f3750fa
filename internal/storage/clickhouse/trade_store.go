package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/observability"
	"solana-copy-bot/internal/storage"
)

// TradeStore implements storage.TradeStore using ClickHouse.
type TradeStore struct {
	conn *Conn
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(conn *Conn) *TradeStore {
	return &TradeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// InsertTrade adds a trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) InsertTrade(ctx context.Context, t *domain.TradeRecord) (err error) {
	if t == nil || t.TradeID == "" || t.BotID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("insert_trade", time.Now(), &err)

	// ReplacingMergeTree would silently collapse duplicates; keep append-only semantics.
	exists, err := s.exists(ctx, t.BotID, t.TradeID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	var success uint8
	if t.Success {
		success = 1
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO bot_trades (
			trade_id, bot_id, user_id, mint, side, venue, reason,
			sol_amount, token_amount, price, profit_pct,
			signature, source_signature, success, error, timestamp_ms
		) VALUES (
			?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?, ?
		)
	`,
		t.TradeID, t.BotID, t.UserID, t.Mint, string(t.Side), t.Venue, t.Reason,
		t.SolAmount, t.TokenAmount, t.Price, t.ProfitPct,
		t.Signature, t.SourceSignature, success, t.Error, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListTrades returns up to limit most recent trades of a bot, newest first.
func (s *TradeStore) ListTrades(ctx context.Context, botID string, limit int) (_ []*domain.TradeRecord, err error) {
	if limit <= 0 {
		limit = 100
	}
	defer observe("list_trades", time.Now(), &err)

	rows, err := s.conn.Query(ctx, `
		SELECT
			trade_id, bot_id, user_id, mint, side, venue, reason,
			sol_amount, token_amount, price, profit_pct,
			signature, source_signature, success, error, timestamp_ms
		FROM bot_trades FINAL
		WHERE bot_id = ?
		ORDER BY timestamp_ms DESC, trade_id ASC
		LIMIT ?
	`, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var result []*domain.TradeRecord
	for rows.Next() {
		var (
			t       domain.TradeRecord
			side    string
			success uint8
		)
		if err := rows.Scan(
			&t.TradeID, &t.BotID, &t.UserID, &t.Mint, &side, &t.Venue, &t.Reason,
			&t.SolAmount, &t.TokenAmount, &t.Price, &t.ProfitPct,
			&t.Signature, &t.SourceSignature, &success, &t.Error, &t.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = domain.TradeSide(side)
		t.Success = success == 1
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return result, nil
}

func (s *TradeStore) exists(ctx context.Context, botID, tradeID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT count() FROM bot_trades WHERE bot_id = ? AND trade_id = ?`,
		botID, tradeID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func observe(op string, start time.Time, err *error) {
	observability.RecordDBQuery("clickhouse", op, time.Since(start).Seconds(), *err)
}
