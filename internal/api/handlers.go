package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/solana"
	"solana-copy-bot/internal/storage"
	"solana-copy-bot/internal/supervisor"
)

const (
	defaultTradeLimit = 100
	defaultLogLimit   = 200
	maxListLimit      = 1000
)

type createBotRequest struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	UserID              string           `json:"userId"`
	WalletPublicKey     string           `json:"walletPublicKey"`
	SecretKey           string           `json:"secretKey"`
	TraderName          string           `json:"traderName"`
	TraderAddress       string           `json:"traderAddress"`
	EjectWalletAddress  string           `json:"ejectWalletAddress"`
	BuyRatio            float64          `json:"buyRatio"`
	PriorityFeeLamports uint64           `json:"priorityFeeInLamports"`
	Strategy            *domain.Strategy `json:"strategy"`
}

type settingsRequest struct {
	PriorityFeeLamports *uint64  `json:"priorityFeeInLamports"`
	BuyRatio            *float64 `json:"buyRatio"`
	EjectWalletAddress  *string  `json:"ejectWalletAddress"`
}

// botView is a stored bot together with its running worker, if any.
type botView struct {
	Bot     *domain.Bot        `json:"bot"`
	Running bool               `json:"running"`
	Worker  *supervisor.Record `json:"worker,omitempty"`
}

func (h *Handler) view(b *domain.Bot) botView {
	v := botView{Bot: b}
	if rec, ok := h.sup.Status(b.ID); ok {
		v.Running = true
		v.Worker = &rec
	}
	return v
}

// CreateBot stores a new bot with its trader, strategy and keypair.
func (h *Handler) CreateBot(c *gin.Context) {
	var req createBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	if err := solana.ValidateWalletAddress(req.TraderAddress); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trader address: " + err.Error()})
		return
	}
	if req.SecretKey != "" {
		if err := solana.ValidateSecretKey(req.SecretKey, req.WalletPublicKey); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid keypair: " + err.Error()})
			return
		}
		if req.WalletPublicKey == "" {
			req.WalletPublicKey, _ = solana.PublicKeyFromSecret(req.SecretKey)
		}
	}

	ctx := c.Request.Context()
	traderWallet, err := h.bots.ResolveWallet(ctx, req.TraderAddress)
	if err != nil {
		h.internalError(c, "resolve trader wallet", err)
		return
	}

	now := time.Now().UnixMilli()
	bot := &domain.Bot{
		ID:                  req.ID,
		Name:                req.Name,
		UserID:              req.UserID,
		WalletPublicKey:     req.WalletPublicKey,
		Trader:              &domain.Trader{ID: uuid.NewString(), Name: req.TraderName, Wallet: *traderWallet},
		Strategy:            req.Strategy,
		BuyRatio:            req.BuyRatio,
		PriorityFeeLamports: req.PriorityFeeLamports,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if bot.ID == "" {
		bot.ID = uuid.NewString()
	}
	if bot.Strategy != nil && bot.Strategy.ID == "" {
		bot.Strategy.ID = uuid.NewString()
	}
	if req.EjectWalletAddress != "" {
		if err := solana.ValidateWalletAddress(req.EjectWalletAddress); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid eject wallet address: " + err.Error()})
			return
		}
		eject, err := h.bots.ResolveWallet(ctx, req.EjectWalletAddress)
		if err != nil {
			h.internalError(c, "resolve eject wallet", err)
			return
		}
		bot.EjectWallet = eject
	}

	if err := h.bots.CreateBot(ctx, bot); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "bot already exists"})
			return
		}
		h.internalError(c, "create bot", err)
		return
	}
	if req.SecretKey != "" {
		kp := &domain.Keypair{PublicKey: req.WalletPublicKey, SecretKey: req.SecretKey}
		if err := h.keys.SaveKeypair(ctx, bot.ID, kp); err != nil {
			h.internalError(c, "save keypair", err)
			return
		}
	}

	h.logger.Info().Str("bot_id", bot.ID).Str("user_id", bot.UserID).Msg("bot created")
	c.JSON(http.StatusCreated, gin.H{"bot": bot})
}

// ListBots returns stored bots, optionally filtered by ?userId=.
func (h *Handler) ListBots(c *gin.Context) {
	bots, err := h.bots.ListBots(c.Request.Context(), c.Query("userId"))
	if err != nil {
		h.internalError(c, "list bots", err)
		return
	}

	views := make([]botView, 0, len(bots))
	for _, b := range bots {
		views = append(views, h.view(b))
	}
	c.JSON(http.StatusOK, gin.H{
		"bots":    views,
		"count":   len(views),
		"running": len(h.sup.List()),
	})
}

// GetBot returns one bot with its worker status.
func (h *Handler) GetBot(c *gin.Context) {
	bot, err := h.bots.GetBot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, "get bot", err)
		return
	}
	c.JSON(http.StatusOK, h.view(bot))
}

// SpawnBot starts the bot's worker.
func (h *Handler) SpawnBot(c *gin.Context) {
	rec, err := h.sup.Spawn(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"worker": rec})
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "bot is already running"})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.internalError(c, "spawn bot", err)
	}
}

// StopBot asks the bot's worker to stop.
func (h *Handler) StopBot(c *gin.Context) {
	err := h.sup.Stop(c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "stopping"})
	case errors.Is(err, supervisor.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "bot is not running"})
	default:
		h.internalError(c, "stop bot", err)
	}
}

// UpdateSettings applies a partial settings update. A running worker keeps
// its settings until respawned.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.BuyRatio != nil && *req.BuyRatio <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "buyRatio must be positive"})
		return
	}

	ctx := c.Request.Context()
	set := domain.BotSettings{
		PriorityFeeLamports: req.PriorityFeeLamports,
		BuyRatio:            req.BuyRatio,
	}
	if req.EjectWalletAddress != nil {
		if err := solana.ValidateWalletAddress(*req.EjectWalletAddress); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid eject wallet address: " + err.Error()})
			return
		}
		wallet, err := h.bots.ResolveWallet(ctx, *req.EjectWalletAddress)
		if err != nil {
			h.internalError(c, "resolve eject wallet", err)
			return
		}
		set.EjectWalletAddress = &wallet.Address
		set.EjectWalletID = &wallet.ID
	}

	bot, err := h.bots.UpdateBotSettings(ctx, c.Param("id"), set)
	if err != nil {
		h.storeError(c, "update settings", err)
		return
	}
	_, running := h.sup.Status(bot.ID)
	c.JSON(http.StatusOK, gin.H{"bot": bot, "restartRequired": running})
}

// ListTrades returns the most recent stored trades of a bot.
func (h *Handler) ListTrades(c *gin.Context) {
	if h.trades == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade store not configured"})
		return
	}
	limit := queryLimit(c, defaultTradeLimit)
	trades, err := h.trades.ListTrades(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.internalError(c, "list trades", err)
		return
	}
	if trades == nil {
		trades = []*domain.TradeRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

// BotLogs returns the analytics copy of a bot's log.
func (h *Handler) BotLogs(c *gin.Context) {
	if h.botLogs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "bot log analytics not configured"})
		return
	}
	entries, err := h.botLogs.RecentBotLogs(c.Request.Context(), c.Param("id"), queryLimit(c, defaultLogLimit))
	if err != nil {
		h.internalError(c, "bot logs", err)
		return
	}
	if entries == nil {
		entries = []*domain.LogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
}

// WatcherMetrics reports upstream connection health.
func (h *Handler) WatcherMetrics(c *gin.Context) {
	if h.watcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "watcher not running"})
		return
	}
	c.JSON(http.StatusOK, h.watcher.Metrics())
}

// RecentLogs returns the durable log tail.
func (h *Handler) RecentLogs(c *gin.Context) {
	if h.logs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "log store not configured"})
		return
	}
	lines, err := h.logs.RecentLogs(c.Request.Context(), queryLimit(c, defaultLogLimit))
	if err != nil {
		h.internalError(c, "recent logs", err)
		return
	}
	if lines == nil {
		lines = []storage.LogLine{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": lines, "count": len(lines)})
}

func queryLimit(c *gin.Context, def int) int {
	limit := def
	if s := c.Query("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= maxListLimit {
			limit = l
		}
	}
	return limit
}

func (h *Handler) storeError(c *gin.Context, op string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
		return
	}
	h.internalError(c, op, err)
}

func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.logger.Error().Err(err).Str("op", op).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
}
