package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/storage"
)

// LogStore implements storage.LogStore. Each line is stored under
// log:<ms>:<seq> with value "server:<msg>" or "bot:<json>".
type LogStore struct {
	client *Client
	seq    atomic.Uint64
}

// NewLogStore creates a LogStore.
func NewLogStore(client *Client) *LogStore {
	return &LogStore{client: client}
}

var _ storage.LogStore = (*LogStore)(nil)

// AppendServerLog stores a server line at ts.
func (s *LogStore) AppendServerLog(ctx context.Context, ts int64, msg string) error {
	return s.append(ctx, ts, storage.FormatLogValue(storage.LogKindServer, msg))
}

// AppendBotLog stores a bot entry as JSON at entry.Timestamp.
func (s *LogStore) AppendBotLog(ctx context.Context, e *domain.LogEntry) error {
	if e == nil {
		return storage.ErrInvalidInput
	}
	text, err := storage.EncodeBotLog(e)
	if err != nil {
		return err
	}
	return s.append(ctx, e.Timestamp, storage.FormatLogValue(storage.LogKindBot, text))
}

func (s *LogStore) append(ctx context.Context, ts int64, value string) error {
	key := fmt.Sprintf("%s%d:%d", logPrefix, ts, s.seq.Add(1))
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// RecentLogs returns up to limit most recent lines ordered by timestamp ASC.
func (s *LogStore) RecentLogs(ctx context.Context, limit int) ([]storage.LogLine, error) {
	keys, err := s.client.Keys(ctx, logPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("list log keys: %w", err)
	}

	type logKey struct {
		key string
		ts  int64
		seq uint64
	}
	parsed := make([]logKey, 0, len(keys))
	for _, k := range keys {
		ts, seq, ok := parseLogKey(k)
		if !ok {
			continue
		}
		parsed = append(parsed, logKey{key: k, ts: ts, seq: seq})
	}
	sort.Slice(parsed, func(i, j int) bool {
		if parsed[i].ts != parsed[j].ts {
			return parsed[i].ts < parsed[j].ts
		}
		return parsed[i].seq < parsed[j].seq
	})
	if limit > 0 && len(parsed) > limit {
		parsed = parsed[len(parsed)-limit:]
	}
	if len(parsed) == 0 {
		return nil, nil
	}

	// MGET keeps key order, so values stay aligned with parsed.
	ordered := make([]string, len(parsed))
	for i, p := range parsed {
		ordered[i] = p.key
	}
	res, err := s.client.MGet(ctx, ordered...).Result()
	if err != nil {
		return nil, fmt.Errorf("load logs: %w", err)
	}

	lines := make([]storage.LogLine, 0, len(res))
	for i, v := range res {
		str, ok := v.(string)
		if !ok {
			continue
		}
		kind, text, err := storage.ParseLogValue(str)
		if err != nil {
			continue
		}
		lines = append(lines, storage.LogLine{Timestamp: parsed[i].ts, Kind: kind, Text: text})
	}
	return lines, nil
}

// parseLogKey reads "log:<ms>" or "log:<ms>:<seq>".
func parseLogKey(key string) (ts int64, seq uint64, ok bool) {
	rest, found := strings.CutPrefix(key, logPrefix)
	if !found {
		return 0, 0, false
	}
	tsPart, seqPart, hasSeq := strings.Cut(rest, ":")
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if hasSeq {
		if seq, err = strconv.ParseUint(seqPart, 10, 64); err != nil {
			return 0, 0, false
		}
	}
	return ts, seq, true
}
