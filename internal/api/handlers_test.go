package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/storage"
	"solana-copy-bot/internal/storage/memory"
	"solana-copy-bot/internal/supervisor"
	"solana-copy-bot/internal/watcher"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSupervisor struct {
	mu      sync.Mutex
	running map[string]supervisor.Record
	bots    storage.BotStore
}

func (f *fakeSupervisor) Spawn(ctx context.Context, botID string) (*supervisor.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.running[botID]; ok {
		return nil, supervisor.ErrAlreadyRunning
	}
	if _, err := f.bots.GetBot(ctx, botID); err != nil {
		return nil, err
	}
	rec := supervisor.Record{BotID: botID, PID: 42, StartedAt: time.Now()}
	f.running[botID] = rec
	return &rec, nil
}

func (f *fakeSupervisor) Stop(botID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.running[botID]; !ok {
		return supervisor.ErrNotFound
	}
	delete(f.running, botID)
	return nil
}

func (f *fakeSupervisor) List() []supervisor.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]supervisor.Record, 0, len(f.running))
	for _, r := range f.running {
		out = append(out, r)
	}
	return out
}

func (f *fakeSupervisor) Status(botID string) (supervisor.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.running[botID]
	return r, ok
}

type fakeWatcher struct{}

func (fakeWatcher) Metrics() watcher.Metrics {
	return watcher.Metrics{CachedTransactions: 7, Published: 9}
}

type fakeBotLogs struct{}

func (fakeBotLogs) RecentBotLogs(_ context.Context, botID string, limit int) ([]*domain.LogEntry, error) {
	return []*domain.LogEntry{{BotID: botID, Info: "started"}, {BotID: botID, Info: "limit " + strconv.Itoa(limit)}}, nil
}

type testEnv struct {
	router *gin.Engine
	bots   *memory.BotStore
	keys   *memory.KeyStore
	trades *memory.TradeStore
	sup    *fakeSupervisor
}

func newEnv(t *testing.T, apiKey string) *testEnv {
	t.Helper()
	bots := memory.NewBotStore()
	keys := memory.NewKeyStore()
	trades := memory.NewTradeStore()
	sup := &fakeSupervisor{running: make(map[string]supervisor.Record), bots: bots}

	router := NewRouter(Options{
		Supervisor: sup,
		Bots:       bots,
		Keys:       keys,
		Trades:     trades,
		Logs:       memory.NewLogStore(),
		BotLogs:    fakeBotLogs{},
		Watcher:    fakeWatcher{},
		APIKey:     apiKey,
	})
	return &testEnv{router: router, bots: bots, keys: keys, trades: trades, sup: sup}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func wallet(t *testing.T) (public, secret string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return base58.Encode(pub), base58.Encode(priv)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func (e *testEnv) seedBot(t *testing.T, id string) {
	t.Helper()
	trader, _ := wallet(t)
	require.NoError(t, e.bots.CreateBot(context.Background(), &domain.Bot{
		ID:       id,
		UserID:   "user1",
		Trader:   &domain.Trader{Wallet: domain.Wallet{Address: trader}},
		Strategy: &domain.Strategy{ID: "s1", Name: "mirror"},
	}))
}

func TestCreateBot(t *testing.T) {
	env := newEnv(t, "")
	trader, _ := wallet(t)
	pub, secret := wallet(t)

	w := env.do(t, http.MethodPost, "/bots", map[string]any{
		"id":              "bot1",
		"userId":          "user1",
		"walletPublicKey": pub,
		"secretKey":       secret,
		"traderAddress":   trader,
		"strategy":        map[string]any{"name": "mirror", "maxBuyAmount": 1, "shouldCopyBuys": true},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	bot, err := env.bots.GetBot(context.Background(), "bot1")
	require.NoError(t, err)
	assert.Equal(t, trader, bot.TargetAddress())
	assert.Equal(t, "mirror", bot.Strategy.Name)
	assert.NotEmpty(t, bot.Strategy.ID)

	kp, err := env.keys.GetKeypair(context.Background(), "bot1")
	require.NoError(t, err)
	assert.Equal(t, pub, kp.PublicKey)

	w = env.do(t, http.MethodPost, "/bots", map[string]any{
		"id": "bot1", "userId": "user1", "traderAddress": trader,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateBot_Validation(t *testing.T) {
	env := newEnv(t, "")
	trader, _ := wallet(t)
	pub, _ := wallet(t)
	_, otherSecret := wallet(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing user", map[string]any{"traderAddress": trader}},
		{"bad trader", map[string]any{"userId": "u", "traderAddress": "nope"}},
		{"mismatched keypair", map[string]any{
			"userId": "u", "traderAddress": trader, "walletPublicKey": pub, "secretKey": otherSecret,
		}},
		{"bad eject", map[string]any{"userId": "u", "traderAddress": trader, "ejectWalletAddress": "0OIl"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/bots", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestSpawnAndStop(t *testing.T) {
	env := newEnv(t, "")
	env.seedBot(t, "bot1")

	w := env.do(t, http.MethodPost, "/bots/bot1/spawn", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/bots/bot1/spawn", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/bots/bot1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view botView
	decode(t, w, &view)
	assert.True(t, view.Running)
	require.NotNil(t, view.Worker)
	assert.Equal(t, 42, view.Worker.PID)

	w = env.do(t, http.MethodPost, "/bots/bot1/stop", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = env.do(t, http.MethodPost, "/bots/bot1/stop", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/bots/ghost/spawn", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListBots(t *testing.T) {
	env := newEnv(t, "")
	env.seedBot(t, "bot1")
	env.seedBot(t, "bot2")
	_, err := env.sup.Spawn(context.Background(), "bot2")
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/bots?userId=user1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Bots    []botView `json:"bots"`
		Count   int       `json:"count"`
		Running int       `json:"running"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 1, resp.Running)

	w = env.do(t, http.MethodGet, "/bots?userId=nobody", nil)
	decode(t, w, &resp)
	assert.Equal(t, 0, resp.Count)
}

func TestUpdateSettings(t *testing.T) {
	env := newEnv(t, "")
	env.seedBot(t, "bot1")
	eject, _ := wallet(t)

	w := env.do(t, http.MethodPatch, "/bots/bot1/settings", map[string]any{
		"priorityFeeInLamports": 20000,
		"buyRatio":              0.25,
		"ejectWalletAddress":    eject,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	bot, err := env.bots.GetBot(context.Background(), "bot1")
	require.NoError(t, err)
	assert.Equal(t, uint64(20000), bot.PriorityFeeLamports)
	assert.Equal(t, 0.25, bot.BuyRatio)
	assert.Equal(t, eject, bot.EjectAddress())

	// same address resolves to the same wallet record
	again, err := env.bots.ResolveWallet(context.Background(), eject)
	require.NoError(t, err)
	assert.Equal(t, bot.EjectWallet.ID, again.ID)
}

func TestUpdateSettings_Rejects(t *testing.T) {
	env := newEnv(t, "")
	env.seedBot(t, "bot1")

	w := env.do(t, http.MethodPatch, "/bots/bot1/settings", map[string]any{"ejectWalletAddress": "not-an-address"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/bots/bot1/settings", map[string]any{"buyRatio": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/bots/ghost/settings", map[string]any{"buyRatio": 0.5})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTrades(t *testing.T) {
	env := newEnv(t, "")
	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, env.trades.InsertTrade(context.Background(), &domain.TradeRecord{
			TradeID: id, BotID: "bot1", Mint: "Mint1", Side: domain.SideBuy, Timestamp: int64(i + 1),
		}))
	}

	w := env.do(t, http.MethodGet, "/bots/bot1/trades?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Trades []domain.TradeRecord `json:"trades"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Trades, 2)
	assert.Equal(t, "t3", resp.Trades[0].TradeID)
}

func TestBotLogs(t *testing.T) {
	env := newEnv(t, "")
	w := env.do(t, http.MethodGet, "/bots/bot1/logs?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Logs  []domain.LogEntry `json:"logs"`
		Count int               `json:"count"`
	}
	decode(t, w, &resp)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "bot1", resp.Logs[0].BotID)
	assert.Equal(t, "limit 5", resp.Logs[1].Info)
}

func TestWatcherMetrics(t *testing.T) {
	env := newEnv(t, "")
	w := env.do(t, http.MethodGet, "/watcher/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var m watcher.Metrics
	decode(t, w, &m)
	assert.Equal(t, 7, m.CachedTransactions)
	assert.Equal(t, int64(9), m.Published)
}

func TestAPIKeyAuth(t *testing.T) {
	env := newEnv(t, "admin-key")

	w := env.do(t, http.MethodGet, "/bots", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/bots", nil, APIKeyHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/bots", nil, APIKeyHeader, "admin-key")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
