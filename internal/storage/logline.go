package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"solana-copy-bot/internal/domain"
)

// EncodeBotLog renders a bot entry as the stored JSON text.
func EncodeBotLog(e *domain.LogEntry) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode bot log: %w", err)
	}
	return string(data), nil
}

// FormatLogValue renders a durable log value: "server:<msg>" or "bot:<json>".
func FormatLogValue(kind, text string) string {
	return kind + ":" + text
}

// ParseLogValue splits a durable log value into kind and text.
func ParseLogValue(v string) (kind, text string, err error) {
	kind, text, ok := strings.Cut(v, ":")
	if !ok || (kind != LogKindServer && kind != LogKindBot) {
		return "", "", fmt.Errorf("%w: log value %q", ErrInvalidInput, v)
	}
	return kind, text, nil
}
