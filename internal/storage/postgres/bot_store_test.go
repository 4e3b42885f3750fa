package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/storage"
)

func testBot(id, userID string, createdAt int64) *domain.Bot {
	return &domain.Bot{
		ID:              id,
		Name:            "bot " + id,
		UserID:          userID,
		WalletPublicKey: "BotWallet" + id,
		Trader: &domain.Trader{
			Name:   "whale",
			Wallet: domain.Wallet{Address: "Trader" + id},
		},
		Strategy: &domain.Strategy{
			Name:                 "mirror",
			MaxBuyAmount:         2,
			IntendedTradeRatio:   0.5,
			StopLossPercentage:   20,
			TakeProfitPercentage: 50,
			ShouldCopyBuys:       true,
			ShouldCopySells:      true,
			ShouldSellOnCurve:    true,
			PriorityFee:          0.0001,
		},
		BuyRatio:            0.5,
		PriorityFeeLamports: 5000,
		CreatedAt:           createdAt,
		UpdatedAt:           createdAt,
	}
}

func TestBotStore_CreateAndGet(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewBotStore(pool)

	bot := testBot("bot1", "user1", 1000)
	bot.EjectWallet = &domain.Wallet{Address: "EjectWallet1"}
	require.NoError(t, store.CreateBot(ctx, bot))

	got, err := store.GetBot(ctx, "bot1")
	require.NoError(t, err)
	assert.Equal(t, "user1", got.UserID)
	assert.Equal(t, uint64(5000), got.PriorityFeeLamports)
	assert.Equal(t, "Traderbot1", got.TargetAddress())
	assert.NotEmpty(t, got.Trader.ID)
	assert.NotEmpty(t, got.Trader.Wallet.ID)
	assert.Equal(t, "EjectWallet1", got.EjectAddress())
	require.NotNil(t, got.Strategy)
	assert.Equal(t, "mirror", got.Strategy.Name)
	assert.Equal(t, 0.5, got.Strategy.IntendedTradeRatio)
	assert.True(t, got.Strategy.ShouldSellOnCurve)
	assert.False(t, got.Strategy.ShouldEjectOnBuy)

	err = store.CreateBot(ctx, testBot("bot1", "user1", 2000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = store.GetBot(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBotStore_WithoutTrader(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewBotStore(pool)

	require.NoError(t, store.CreateBot(ctx, &domain.Bot{ID: "bare", UserID: "user1", CreatedAt: 1, UpdatedAt: 1}))

	got, err := store.GetBot(ctx, "bare")
	require.NoError(t, err)
	assert.Nil(t, got.Trader)
	assert.Nil(t, got.Strategy)
	assert.Nil(t, got.EjectWallet)
}

func TestBotStore_ListBots(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewBotStore(pool)

	require.NoError(t, store.CreateBot(ctx, testBot("b3", "user1", 3000)))
	require.NoError(t, store.CreateBot(ctx, testBot("b1", "user1", 1000)))
	require.NoError(t, store.CreateBot(ctx, testBot("b2", "user2", 2000)))

	bots, err := store.ListBots(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, bots, 2)
	assert.Equal(t, "b1", bots[0].ID)
	assert.Equal(t, "b3", bots[1].ID)

	all, err := store.ListBots(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b2", all[1].ID)
}

func TestBotStore_UpdateSettings(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewBotStore(pool)
	require.NoError(t, store.CreateBot(ctx, testBot("bot1", "user1", 1000)))

	updated, err := store.UpdateBotSettings(ctx, "bot1", domain.BotSettings{
		BuyRatio:           ptr(0.25),
		EjectWalletAddress: ptr("EjectWallet2"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.25, updated.BuyRatio)
	assert.Equal(t, uint64(5000), updated.PriorityFeeLamports, "nil fields stay unchanged")
	assert.Equal(t, "EjectWallet2", updated.EjectAddress())
	assert.Greater(t, updated.UpdatedAt, int64(1000))

	updated, err = store.UpdateBotSettings(ctx, "bot1", domain.BotSettings{PriorityFeeLamports: ptr(uint64(9000))})
	require.NoError(t, err)
	assert.Equal(t, uint64(9000), updated.PriorityFeeLamports)
	assert.Equal(t, "EjectWallet2", updated.EjectAddress())

	_, err = store.UpdateBotSettings(ctx, "missing", domain.BotSettings{BuyRatio: ptr(1.0)})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBotStore_ResolveWallet(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewBotStore(pool)

	w1, err := store.ResolveWallet(ctx, "Wallet1")
	require.NoError(t, err)
	w2, err := store.ResolveWallet(ctx, "Wallet1")
	require.NoError(t, err)
	assert.Equal(t, w1.ID, w2.ID)

	_, err = store.ResolveWallet(ctx, "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestKeyStore(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	bots := NewBotStore(pool)
	keys := NewKeyStore(pool)
	require.NoError(t, bots.CreateBot(ctx, testBot("bot1", "user1", 1000)))

	kp := &domain.Keypair{PublicKey: "Pub1", SecretKey: "Secret1"}
	require.NoError(t, keys.SaveKeypair(ctx, "bot1", kp))
	assert.ErrorIs(t, keys.SaveKeypair(ctx, "bot1", kp), storage.ErrDuplicateKey)

	got, err := keys.GetKeypair(ctx, "bot1")
	require.NoError(t, err)
	assert.Equal(t, *kp, *got)

	_, err = keys.GetKeypair(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, keys.SaveKeypair(ctx, "bot1", &domain.Keypair{}), storage.ErrInvalidInput)
	assert.ErrorIs(t, keys.SaveKeypair(ctx, "ghost", kp), storage.ErrNotFound)
}
