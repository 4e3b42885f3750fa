// Package main runs the copy-trading server: the upstream transaction
// watcher, the event bus with its client bridge, the bot supervisor, the
// Kafka exporter and the admin API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"solana-copy-bot/internal/api"
	"solana-copy-bot/internal/bridge"
	"solana-copy-bot/internal/broadcast"
	"solana-copy-bot/internal/config"
	"solana-copy-bot/internal/eventbus"
	"solana-copy-bot/internal/export"
	"solana-copy-bot/internal/observability"
	"solana-copy-bot/internal/solana"
	"solana-copy-bot/internal/storage"
	chstore "solana-copy-bot/internal/storage/clickhouse"
	"solana-copy-bot/internal/storage/memory"
	"solana-copy-bot/internal/storage/migrations"
	pgstore "solana-copy-bot/internal/storage/postgres"
	redisstore "solana-copy-bot/internal/storage/redis"
	"solana-copy-bot/internal/supervisor"
	"solana-copy-bot/internal/watcher"
)

const serviceName = "copybot-server"

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.yaml in . or ./config)")
	addr := flag.String("addr", "", "Override server.addr")
	production := flag.Bool("production", false, "Force production mode (durable tx cache and log)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		if *addr != "" {
			cfg.Server.Addr = *addr
		}
		if *production {
			cfg.Server.Production = true
		}
		err = cfg.ValidateServer()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.SetupLogging(cfg.Log.Level, cfg.Log.Format, serviceName, os.Stdout)
	if cfg.Log.Format == "json" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath, logger); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, configPath string, logger zerolog.Logger) error {
	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	bus := eventbus.New(eventbus.Options{Logger: component(logger, "eventbus")})

	w, err := watcher.New(watcher.Options{
		Config: watcher.Config{
			PrimaryURL:       cfg.Helius.PrimaryURL,
			BackupURL:        cfg.Helius.BackupURL,
			BackupGrace:      cfg.Helius.BackupGrace,
			WatchedAddresses: cfg.Helius.WatchedAddresses,
			CacheSize:        cfg.Watcher.CacheSize,
			DedupTTL:         cfg.Watcher.DedupTTL,
			HealthInterval:   cfg.Watcher.HealthInterval,
			SilenceThreshold: cfg.Watcher.SilenceThreshold,
			PingInterval:     cfg.Watcher.PingInterval,
			BaseBackoff:      cfg.Watcher.BaseBackoff,
			MaxBackoff:       cfg.Watcher.MaxBackoff,
			MaxReconnects:    cfg.Watcher.MaxReconnects,
			RestoreLimit:     cfg.Watcher.RestoreLimit,
		},
		Dialer: solana.NewWSDialer(nil),
		Bus:    bus,
		Store:  stores.txs,
		Logger: component(logger, "watcher"),
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	hub := broadcast.NewHub(broadcast.Options{Replay: w, Logger: component(logger, "broadcast")})
	defer hub.Close()

	br := bridge.New(bridge.Options{Bus: bus, Clients: hub, Logs: stores.logs, Logger: component(logger, "bridge")})
	br.Start()
	defer br.Stop()

	var workerArgs []string
	if configPath != "" {
		workerArgs = []string{"-config", configPath}
	}
	sup, err := supervisor.New(supervisor.Options{
		Bus:    bus,
		Bots:   stores.bots,
		Keys:   stores.keys,
		Trades: stores.trades,
		Launcher: &supervisor.ExecLauncher{
			Path:   cfg.Bots.WorkerPath,
			Args:   workerArgs,
			Logger: *component(logger, "launcher"),
		},
		Logger: component(logger, "supervisor"),
	})
	if err != nil {
		return fmt.Errorf("create supervisor: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 4)

	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := export.NewPublisher(export.Options{
			Bus: bus,
			Writer: export.NewWriter(export.Config{
				Brokers:    cfg.Kafka.Brokers,
				TxTopic:    cfg.Kafka.TxTopic,
				TradeTopic: cfg.Kafka.TradeTopic,
			}),
			TxTopic:    cfg.Kafka.TxTopic,
			TradeTopic: cfg.Kafka.TradeTopic,
			Logger:     component(logger, "export"),
		})
		if err != nil {
			return fmt.Errorf("create kafka publisher: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pub.Run(ctx); err != nil {
				logger.Warn().Err(err).Msg("kafka publisher closed with error")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs <- fmt.Errorf("watcher: %w", err)
		}
	}()

	router := api.NewRouter(api.Options{
		Supervisor: sup,
		Bots:       stores.bots,
		Keys:       stores.keys,
		Trades:     stores.trades,
		Logs:       stores.logs,
		BotLogs:    stores.botLogs,
		Watcher:    w,
		APIKey:     cfg.Server.APIKey,
		Logger:     component(logger, "api"),
	})
	router.GET("/ws", gin.WrapF(hub.Handler()))
	if cfg.Server.APIKey == "" {
		logger.Warn().Msg("server.api_key not set, admin API is unauthenticated")
	}

	apiServer := &http.Server{Addr: cfg.Server.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 10 * time.Second}
	for name, srv := range map[string]*http.Server{"api": apiServer, "metrics": metricsServer} {
		go func() {
			logger.Info().Str("listener", name).Str("addr", srv.Addr).Msg("http listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("%s server: %w", name, err)
			}
		}()
	}

	br.LogServer("server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errs:
		logger.Error().Err(runErr).Msg("component failed, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Bots.StopTimeout)
	defer shutdownCancel()

	if err := sup.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("supervisor shutdown incomplete")
	}
	for _, srv := range []*http.Server{apiServer, metricsServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Str("addr", srv.Addr).Msg("http shutdown")
		}
	}

	cancel()
	wg.Wait()
	return runErr
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// stores holds the storage implementations selected by config.
type stores struct {
	bots    storage.BotStore
	keys    storage.KeyStore
	trades  storage.TradeStore
	txs     storage.TxStore
	logs    storage.LogStore
	botLogs storage.BotLogReader
	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores picks PostgreSQL for bot configuration and ClickHouse for trades
// when their DSNs are set, in-memory stores otherwise. Redis backs the tx
// cache and log only in production.
func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	s := &stores{}
	fail := func(err error) (*stores, error) {
		s.close()
		return nil, err
	}

	if cfg.Postgres.DSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fail(err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fail(fmt.Errorf("postgres migrations: %w", err))
		}
		s.bots = pgstore.NewBotStore(pool)
		s.keys = pgstore.NewKeyStore(pool)
		logger.Info().Msg("using postgres bot store")
	} else {
		s.bots = memory.NewBotStore()
		s.keys = memory.NewKeyStore()
		logger.Warn().Msg("postgres.dsn not set, bots are kept in memory")
	}

	var botLogSink *chstore.BotLogStore
	if cfg.ClickHouse.DSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			return fail(fmt.Errorf("clickhouse migrations: %w", err))
		}
		s.closers = append(s.closers, func() { conn.Close() })
		s.trades = chstore.NewTradeStore(conn)
		botLogSink = chstore.NewBotLogStore(conn)
		s.botLogs = botLogSink
		logger.Info().Msg("using clickhouse trade store")
	} else {
		s.trades = memory.NewTradeStore()
	}

	if cfg.Server.Production {
		client, err := redisstore.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fail(err)
		}
		s.closers = append(s.closers, func() { client.Close() })
		s.txs = redisstore.NewTxStore(client, cfg.Redis.TxTTL)
		s.logs = redisstore.NewLogStore(client)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("using redis tx cache and log")
	} else {
		s.txs = storage.Noop{}
		s.logs = storage.Noop{}
	}
	if botLogSink != nil {
		s.logs = storage.Tee(s.logs, botLogSink)
	}

	return s, nil
}

func component(logger zerolog.Logger, name string) *zerolog.Logger {
	l := logger.With().Str("component", name).Logger()
	return &l
}
