// Package watcher maintains the upstream transaction stream: primary and
// backup connections, heartbeat monitoring, reconnect backoff, signature
// dedup, the bounded transaction cache and its durable mirror.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/eventbus"
	"solana-copy-bot/internal/observability"
	"solana-copy-bot/internal/solana"
	"solana-copy-bot/internal/storage"
	"solana-copy-bot/internal/txcache"
)

// Connection names.
const (
	Primary = "primary"
	Backup  = "backup"
)

// Publisher receives ingested transactions.
type Publisher interface {
	Publish(ev eventbus.Event)
}

// Options configures a Watcher.
type Options struct {
	Config Config
	Dialer solana.StreamDialer
	Bus    Publisher
	// Store mirrors the cache. Nil disables persistence.
	Store  storage.TxStore
	Logger *zerolog.Logger
}

// Watcher ingests transaction notifications from one or two upstream
// connections into a single deduplicated stream.
type Watcher struct {
	cfg    Config
	bus    Publisher
	store  storage.TxStore
	logger zerolog.Logger

	// ingestMu serializes the transaction path of both connections, so
	// publication order matches cache insertion order.
	ingestMu sync.Mutex
	cache    *txcache.Cache
	dedup    *txcache.DedupWindow

	primary *Connection
	backup  *Connection

	mu            sync.Mutex
	backupStarted bool

	published  atomic.Int64
	duplicates atomic.Int64
}

// New creates a watcher. Run starts it.
func New(opts Options) (*Watcher, error) {
	cfg := opts.Config.withDefaults()
	if cfg.PrimaryURL == "" {
		return nil, errors.New("watcher: primary url is required")
	}
	if opts.Dialer == nil {
		return nil, errors.New("watcher: dialer is required")
	}
	if opts.Bus == nil {
		return nil, errors.New("watcher: bus is required")
	}

	logger := log.Logger.With().Str("component", "watcher").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	store := opts.Store
	if store == nil {
		store = storage.Noop{}
	}

	w := &Watcher{
		cfg:    cfg,
		bus:    opts.Bus,
		store:  store,
		logger: logger,
		cache:  txcache.New(cfg.CacheSize),
		dedup:  txcache.NewDedupWindow(cfg.DedupTTL),
	}

	w.primary = newConnection(Primary, cfg.PrimaryURL, cfg, opts.Dialer, w.ingest, w.restore, logger)
	if cfg.BackupURL != "" {
		w.backup = newConnection(Backup, cfg.BackupURL, cfg, opts.Dialer, w.ingest, w.restore, logger)
	}
	return w, nil
}

// Run drives the connections until ctx is done. It returns ErrMaxReconnects
// when every started connection has given up.
func (w *Watcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	done := make(chan error, 2)
	running := 0

	launch := func(c *Connection) {
		running++
		wg.Add(1)
		go func() {
			defer wg.Done()
			done <- c.run(ctx)
		}()
	}

	launch(w.primary)

	// The backup starts after the grace delay unless the primary proves
	// healthy first, and whenever the primary gives up.
	var grace <-chan time.Time
	var primaryHealthy <-chan struct{}
	if w.backup != nil {
		timer := time.NewTimer(w.cfg.BackupGrace)
		defer timer.Stop()
		grace = timer.C
		primaryHealthy = w.primary.FirstHeartbeat()
	}

	prune := time.NewTicker(w.cfg.HealthInterval)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil

		case <-primaryHealthy:
			grace, primaryHealthy = nil, nil
			w.logger.Info().Msg("primary healthy, backup on standby")

		case <-grace:
			grace, primaryHealthy = nil, nil
			if w.markBackupStarted() {
				w.logger.Info().Msg("starting backup connection")
				launch(w.backup)
			}

		case err := <-done:
			running--
			if ctx.Err() != nil {
				continue
			}
			if w.backup != nil && w.markBackupStarted() {
				w.logger.Warn().Err(err).Msg("primary stopped, failing over to backup")
				grace, primaryHealthy = nil, nil
				launch(w.backup)
				continue
			}
			if running == 0 {
				cancel()
				wg.Wait()
				return err
			}

		case now := <-prune.C:
			if n := w.dedup.Prune(now); n > 0 {
				w.logger.Debug().Int("expired", n).Msg("pruned dedup window")
			}
		}
	}
}

func (w *Watcher) markBackupStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.backupStarted {
		return false
	}
	w.backupStarted = true
	return true
}

// ingest is the shared transaction path of both connections.
func (w *Watcher) ingest(ctx context.Context, source string, raw []byte, n *solana.Notification) {
	w.ingestMu.Lock()
	defer w.ingestMu.Unlock()

	if !w.dedup.CheckAndAdd(n.Signature) {
		w.duplicates.Add(1)
		observability.RecordDuplicateTx()
		return
	}

	tx := &domain.TxNotification{
		Signature:  n.Signature,
		Slot:       n.Slot,
		ReceivedAt: time.Now().UnixMilli(),
		Payload:    json.RawMessage(append([]byte(nil), raw...)),
	}

	if err := w.store.SaveTx(ctx, tx); err != nil {
		w.logger.Warn().Err(err).Str("signature", tx.Signature).Msg("failed to persist transaction")
	}

	if evicted := w.cache.Put(tx); len(evicted) > 0 {
		w.logger.Debug().Int("evicted", len(evicted)).Msg("cache full, evicted oldest")
	}
	observability.SetCachedTransactions(w.cache.Len())

	w.logger.Debug().Str("signature", tx.Signature).Str("source", source).Msg("caching transaction")
	w.published.Add(1)
	w.bus.Publish(eventbus.Event{Kind: eventbus.KindTxNotification, Payload: tx})
}

// restore reloads the most recent durable entries into the cache.
func (w *Watcher) restore(ctx context.Context) {
	if w.cfg.RestoreLimit == 0 {
		return
	}
	txs, err := w.store.RecentTx(ctx, w.cfg.RestoreLimit)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to restore transactions")
		return
	}
	if n := w.cache.Restore(txs); n > 0 {
		w.logger.Info().Int("restored", n).Msg("restored transactions from store")
		observability.SetCachedTransactions(w.cache.Len())
	}
}

// RecentTransactions returns cached notifications, oldest first.
func (w *Watcher) RecentTransactions() []*domain.TxNotification {
	return w.cache.Values()
}

// Metrics returns a snapshot of all connections and the cache.
func (w *Watcher) Metrics() Metrics {
	m := Metrics{
		Connections:        []ConnectionMetrics{w.primary.Metrics()},
		CachedTransactions: w.cache.Len(),
		DedupEntries:       w.dedup.Len(),
		Published:          w.published.Load(),
		Duplicates:         w.duplicates.Load(),
	}
	if w.backup != nil {
		m.Connections = append(m.Connections, w.backup.Metrics())
	}
	return m
}
