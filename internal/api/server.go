// Package api serves the admin HTTP routes: bot lifecycle, settings and
// watcher health.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-copy-bot/internal/storage"
	"solana-copy-bot/internal/supervisor"
	"solana-copy-bot/internal/watcher"
)

// APIKeyHeader carries the admin key when one is configured.
const APIKeyHeader = "X-API-Key"

// Supervisor is the bot lifecycle the API drives.
type Supervisor interface {
	Spawn(ctx context.Context, botID string) (*supervisor.Record, error)
	Stop(botID string) error
	List() []supervisor.Record
	Status(botID string) (supervisor.Record, bool)
}

// WatcherMetrics reports stream health.
type WatcherMetrics interface {
	Metrics() watcher.Metrics
}

// Options configures the API.
type Options struct {
	Supervisor Supervisor
	Bots       storage.BotStore
	Keys       storage.KeyStore
	Trades     storage.TradeStore   // optional
	Logs       storage.LogStore     // optional
	BotLogs    storage.BotLogReader // optional
	Watcher    WatcherMetrics       // optional
	// APIKey enables header authentication when set.
	APIKey string
	Logger *zerolog.Logger
}

// Handler handles admin requests.
type Handler struct {
	sup     Supervisor
	bots    storage.BotStore
	keys    storage.KeyStore
	trades  storage.TradeStore
	logs    storage.LogStore
	botLogs storage.BotLogReader
	watcher WatcherMetrics
	logger  zerolog.Logger
}

// NewRouter builds the gin engine with every admin route registered.
func NewRouter(opts Options) *gin.Engine {
	logger := log.Logger.With().Str("component", "api").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	h := &Handler{
		sup:     opts.Supervisor,
		bots:    opts.Bots,
		keys:    opts.Keys,
		trades:  opts.Trades,
		logs:    opts.Logs,
		botLogs: opts.BotLogs,
		watcher: opts.Watcher,
		logger:  logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	admin := r.Group("/", apiKeyAuth(opts.APIKey))
	admin.POST("/bots", h.CreateBot)
	admin.GET("/bots", h.ListBots)
	admin.GET("/bots/:id", h.GetBot)
	admin.POST("/bots/:id/spawn", h.SpawnBot)
	admin.POST("/bots/:id/stop", h.StopBot)
	admin.PATCH("/bots/:id/settings", h.UpdateSettings)
	admin.GET("/bots/:id/trades", h.ListTrades)
	admin.GET("/bots/:id/logs", h.BotLogs)
	admin.GET("/watcher/metrics", h.WatcherMetrics)
	admin.GET("/logs", h.RecentLogs)

	return r
}

// apiKeyAuth rejects requests without the configured key. An empty key
// disables the check.
func apiKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		got := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
