// Package ipc is the supervisor/worker protocol: typed messages encoded as
// newline-delimited JSON over the worker's stdin and stdout.
package ipc

import (
	"encoding/json"
	"fmt"

	"solana-copy-bot/internal/domain"
)

// Type tags a Message.
type Type string

// Message types. SPAWN, STOP and TX_EVENT flow to the worker; the rest
// flow back to the supervisor.
const (
	TypeSpawn             Type = "SPAWN"
	TypeStop              Type = "STOP"
	TypeStatusUpdate      Type = "STATUS_UPDATE"
	TypeTradeNotification Type = "TRADE_NOTIFICATION"
	TypeLogEvent          Type = "LOG_EVENT"
	TypeTxEvent           Type = "TX_EVENT"
)

// Message is one protocol frame.
type Message struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SpawnPayload carries everything a worker needs to run one bot.
type SpawnPayload struct {
	BotID     string           `json:"botId"`
	UserID    string           `json:"userId"`
	SecretKey string           `json:"secretKey"`
	PublicKey string           `json:"publicKey"`
	Bot       *domain.Bot      `json:"bot"`
	Strategy  *domain.Strategy `json:"strategy"`
	// TargetTrader is the mirrored wallet address.
	TargetTrader string `json:"targetTrader"`
}

// StatusPayload is the periodic worker status.
type StatusPayload = domain.BotStatus

// TradePayload reports an executed or failed trade.
type TradePayload = domain.TradeRecord

// LogPayload is a worker log event.
type LogPayload struct {
	Info string         `json:"info"`
	Meta map[string]any `json:"data,omitempty"`
}

// TxEventPayload forwards a decoded transaction to one worker.
type TxEventPayload struct {
	BotID    string          `json:"botId"`
	Strategy string          `json:"strategy"`
	Event    *domain.TxEvent `json:"event"`
}

// New builds a message with payload encoded as JSON. A nil payload is omitted.
func New(t Type, payload any) (Message, error) {
	msg := Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	msg.Payload = data
	return msg, nil
}

func (m Message) decode(want Type, v any) error {
	if m.Type != want {
		return fmt.Errorf("ipc: message is %s, not %s", m.Type, want)
	}
	if len(m.Payload) == 0 {
		return fmt.Errorf("ipc: %s has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("ipc: decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Spawn decodes a SPAWN payload.
func (m Message) Spawn() (*SpawnPayload, error) {
	var p SpawnPayload
	if err := m.decode(TypeSpawn, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Status decodes a STATUS_UPDATE payload.
func (m Message) Status() (*StatusPayload, error) {
	var p StatusPayload
	if err := m.decode(TypeStatusUpdate, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Trade decodes a TRADE_NOTIFICATION payload.
func (m Message) Trade() (*TradePayload, error) {
	var p TradePayload
	if err := m.decode(TypeTradeNotification, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Log decodes a LOG_EVENT payload.
func (m Message) Log() (*LogPayload, error) {
	var p LogPayload
	if err := m.decode(TypeLogEvent, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// TxEvent decodes a TX_EVENT payload.
func (m Message) TxEvent() (*TxEventPayload, error) {
	var p TxEventPayload
	if err := m.decode(TypeTxEvent, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
