// Package main runs one copy-trading bot. The supervisor starts it with the
// bot id, speaks the worker protocol over stdin/stdout and reads logs from
// stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"solana-copy-bot/internal/config"
	"solana-copy-bot/internal/executor"
	"solana-copy-bot/internal/observability"
	"solana-copy-bot/internal/solana"
	"solana-copy-bot/internal/worker"
)

func main() {
	botID := flag.String("bot-id", "", "Bot ID (set by the supervisor)")
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(worker.ExitConfigError)
	}
	if err := cfg.ValidateWorker(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(worker.ExitConfigError)
	}

	// stdout carries the protocol; logs go to stderr only
	observability.SetupLogging(cfg.Log.Level, cfg.Log.Format, "botworker", os.Stderr)
	logger := log.Logger.With().Str("bot_id", *botID).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	execLogger := logger.With().Str("component", "executor").Logger()
	exec := executor.New(cfg.Executor.BaseURL, cfg.Executor.APIKey,
		executor.WithRetries(cfg.Executor.Retries),
		executor.WithRetryDelay(cfg.Executor.RetryDelay),
		executor.WithRateLimit(cfg.Executor.RateLimit, cfg.Executor.Burst),
		executor.WithTimeout(cfg.Executor.Timeout),
		executor.WithLogger(execLogger),
	)

	var rpc solana.RPCClient
	if cfg.RPC.URL != "" {
		rpc = solana.NewHTTPClient(cfg.RPC.URL)
	}

	w := worker.New(worker.Options{
		In:              os.Stdin,
		Out:             os.Stdout,
		Executor:        exec,
		RPC:             rpc,
		ReserveLamports: cfg.Bots.ReserveLamports,
		StatusInterval:  cfg.Bots.StatusInterval,
		Logger:          &logger,
	})

	logger.Info().Msg("worker started")
	code := w.Run(ctx)
	logger.Info().Int("exit_code", code).Msg("worker exiting")
	stop()
	os.Exit(code)
}
