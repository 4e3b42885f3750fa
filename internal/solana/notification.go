package solana

import (
	"encoding/json"
	"fmt"
)

// MessageKind classifies an inbound upstream stream message.
type MessageKind int

const (
	MessageUnknown MessageKind = iota
	MessageSubscribed
	MessageError
	MessageHeartbeat
	MessageTransaction
)

func (k MessageKind) String() string {
	switch k {
	case MessageSubscribed:
		return "subscribed"
	case MessageError:
		return "error"
	case MessageHeartbeat:
		return "heartbeat"
	case MessageTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// StreamMessage is a classified upstream message. Exactly one of the
// kind-specific fields is set.
type StreamMessage struct {
	Kind           MessageKind
	RequestID      string // MessageSubscribed, MessageError
	SubscriptionID int64  // MessageSubscribed
	ErrMessage     string // MessageError
	HeartbeatSlot  int64  // MessageHeartbeat
	Transaction    *Notification
}

// ParseStreamMessage classifies a raw upstream message. Transaction
// notifications are fully parsed and validated; failures are returned as
// *DecodeError.
func ParseStreamMessage(data []byte) (*StreamMessage, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Field: "envelope", Reason: "invalid json", Err: err}
	}

	if env.Error != nil {
		return &StreamMessage{
			Kind:       MessageError,
			RequestID:  rawID(env.ID),
			ErrMessage: fmt.Sprintf("code=%d msg=%s", env.Error.Code, env.Error.Message),
		}, nil
	}

	if env.Params == nil {
		if len(env.ID) > 0 && len(env.Result) > 0 {
			var subID int64
			if err := json.Unmarshal(env.Result, &subID); err == nil {
				return &StreamMessage{Kind: MessageSubscribed, RequestID: rawID(env.ID), SubscriptionID: subID}, nil
			}
		}
		return &StreamMessage{Kind: MessageUnknown}, nil
	}

	if len(env.Params.Error) > 0 && string(env.Params.Error) != "null" {
		return &StreamMessage{Kind: MessageError, ErrMessage: string(env.Params.Error)}, nil
	}

	if slot, ok := heartbeatSlot(env.Params.Result); ok {
		return &StreamMessage{Kind: MessageHeartbeat, HeartbeatSlot: slot}, nil
	}

	n, err := parseTransaction(env.Params.Result)
	if err != nil {
		return nil, err
	}
	return &StreamMessage{Kind: MessageTransaction, Transaction: n}, nil
}

// ParseNotification parses a transaction notification message. It accepts
// the full upstream envelope.
func ParseNotification(data []byte) (*Notification, error) {
	msg, err := ParseStreamMessage(data)
	if err != nil {
		return nil, err
	}
	if msg.Kind != MessageTransaction {
		return nil, &DecodeError{Field: "params.result", Reason: "not a transaction notification (" + msg.Kind.String() + ")"}
	}
	return msg.Transaction, nil
}

func heartbeatSlot(result json.RawMessage) (int64, bool) {
	var acc wireAccountResult
	if err := json.Unmarshal(result, &acc); err != nil || acc.Value == nil {
		return 0, false
	}
	if acc.Value.Data.Program != "sysvar" || acc.Value.Data.Parsed.Type != "clock" {
		return 0, false
	}
	return acc.Context.Slot, true
}

func parseTransaction(result json.RawMessage) (*Notification, error) {
	var r wireTxResult
	if err := json.Unmarshal(result, &r); err != nil {
		return nil, &DecodeError{Field: "params.result", Reason: "invalid transaction shape", Err: err}
	}
	if r.Signature == "" {
		return nil, &DecodeError{Field: "params.result.signature", Reason: "missing"}
	}
	if r.Transaction == nil || r.Transaction.Transaction == nil || r.Transaction.Transaction.Message == nil {
		return nil, &DecodeError{Field: "params.result.transaction.transaction.message", Reason: "missing"}
	}
	msg := r.Transaction.Transaction.Message
	if len(msg.AccountKeys) == 0 {
		return nil, &DecodeError{Field: "message.accountKeys", Reason: "empty"}
	}

	n := &Notification{
		Signature:    r.Signature,
		Slot:         r.Slot,
		AccountKeys:  msg.AccountKeys,
		Instructions: msg.Instructions,
	}

	if meta := r.Transaction.Meta; meta != nil {
		if len(meta.PreBalances) != len(meta.PostBalances) {
			return nil, &DecodeError{Field: "meta.postBalances", Reason: "length differs from preBalances"}
		}
		n.Err = meta.Err
		n.Fee = meta.Fee
		n.PreBalances = meta.PreBalances
		n.PostBalances = meta.PostBalances
		n.InnerInstructions = meta.InnerInstructions
		n.LogMessages = meta.LogMessages
		n.PreTokenBalances = meta.PreTokenBalances
		n.PostTokenBalances = meta.PostTokenBalances
	}

	return n, nil
}

func rawID(id json.RawMessage) string {
	var s string
	if err := json.Unmarshal(id, &s); err == nil {
		return s
	}
	return string(id)
}
