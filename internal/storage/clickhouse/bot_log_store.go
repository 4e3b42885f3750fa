package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/storage"
)

// BotLogStore keeps bot log entries for per-bot analytics queries.
type BotLogStore struct {
	conn *Conn
}

// NewBotLogStore creates a new BotLogStore.
func NewBotLogStore(conn *Conn) *BotLogStore {
	return &BotLogStore{conn: conn}
}

var _ storage.BotLogSink = (*BotLogStore)(nil)

// AppendBotLog stores one entry. Meta is kept as JSON text.
func (s *BotLogStore) AppendBotLog(ctx context.Context, e *domain.LogEntry) error {
	if e == nil || e.BotID == "" {
		return storage.ErrInvalidInput
	}

	data := ""
	if len(e.Meta) > 0 {
		b, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("marshal log meta: %w", err)
		}
		data = string(b)
	}

	err := s.conn.Exec(ctx, `
		INSERT INTO bot_logs (bot_id, user_id, strategy, info, data, timestamp_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.BotID, e.UserID, e.Strategy, e.Info, data, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert bot log: %w", err)
	}
	return nil
}

// RecentBotLogs returns up to limit most recent entries of a bot, oldest first.
func (s *BotLogStore) RecentBotLogs(ctx context.Context, botID string, limit int) ([]*domain.LogEntry, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.conn.Query(ctx, `
		SELECT bot_id, user_id, strategy, info, data, timestamp_ms
		FROM (
			SELECT * FROM bot_logs
			WHERE bot_id = ?
			ORDER BY timestamp_ms DESC
			LIMIT ?
		)
		ORDER BY timestamp_ms ASC
	`, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("query bot logs: %w", err)
	}
	defer rows.Close()

	var result []*domain.LogEntry
	for rows.Next() {
		var (
			e    domain.LogEntry
			data string
		)
		if err := rows.Scan(&e.BotID, &e.UserID, &e.Strategy, &e.Info, &data, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan bot log: %w", err)
		}
		if data != "" {
			if err := json.Unmarshal([]byte(data), &e.Meta); err != nil {
				return nil, fmt.Errorf("decode log meta: %w", err)
			}
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bot logs: %w", err)
	}
	return result, nil
}
