package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/executor"
	"solana-copy-bot/internal/ipc"
	"solana-copy-bot/internal/solana/stub"
)

type fakeTrader struct {
	mu        sync.Mutex
	buys      []executor.BuyRequest
	sells     []executor.SellRequest
	transfers []executor.TransferRequest
	err       error
}

func (f *fakeTrader) Buy(_ context.Context, req executor.BuyRequest) (*executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buys = append(f.buys, req)
	if f.err != nil {
		return nil, f.err
	}
	return &executor.Result{Signature: "buy-sig", Venue: req.Venue}, nil
}

func (f *fakeTrader) Sell(_ context.Context, req executor.SellRequest) (*executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sells = append(f.sells, req)
	if f.err != nil {
		return nil, f.err
	}
	return &executor.Result{Signature: "sell-sig", Venue: req.Venue}, nil
}

func (f *fakeTrader) Transfer(_ context.Context, req executor.TransferRequest) (*executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, req)
	return &executor.Result{Signature: "transfer-sig"}, nil
}

func (f *fakeTrader) buyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buys)
}

type harness struct {
	in   *io.PipeWriter
	enc  *ipc.Encoder
	out  chan ipc.Message
	done chan int
}

func startWorker(t *testing.T, opts Options) *harness {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	opts.In = inR
	opts.Out = outW
	if opts.StatusInterval == 0 {
		opts.StatusInterval = time.Hour
	}
	w := New(opts)

	h := &harness{
		in:   inW,
		enc:  ipc.NewEncoder(inW),
		out:  make(chan ipc.Message, 256),
		done: make(chan int, 1),
	}

	go func() {
		dec := ipc.NewDecoder(outR)
		for {
			msg, err := dec.Decode()
			if err != nil {
				close(h.out)
				return
			}
			h.out <- msg
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		code := w.Run(ctx)
		outW.Close()
		h.done <- code
	}()
	t.Cleanup(func() { inW.Close() })
	return h
}

func (h *harness) send(t *testing.T, typ ipc.Type, payload any) {
	t.Helper()
	require.NoError(t, h.enc.Send(typ, payload))
}

// next returns the next message of type typ, skipping others.
func (h *harness) next(t *testing.T, typ ipc.Type) ipc.Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-h.out:
			if !ok {
				t.Fatalf("worker output closed waiting for %s", typ)
			}
			if msg.Type == typ {
				return msg
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

// finalStatus returns the last status the worker reports before exiting.
func (h *harness) finalStatus(t *testing.T) *domain.BotStatus {
	t.Helper()
	var last *domain.BotStatus
	for msg := range h.out {
		if msg.Type != ipc.TypeStatusUpdate {
			continue
		}
		st, err := msg.Status()
		require.NoError(t, err)
		last = st
	}
	require.NotNil(t, last, "no status reported")
	return last
}

func (h *harness) exitCode(t *testing.T) int {
	t.Helper()
	select {
	case code := <-h.done:
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit")
		return -1
	}
}

func testSpawn() *ipc.SpawnPayload {
	strat := &domain.Strategy{
		ID:                 "s1",
		Name:               "mirror",
		MaxBuyAmount:       10,
		IntendedTradeRatio: 0.5,
		ShouldCopyBuys:     true,
		ShouldCopySells:    true,
	}
	return &ipc.SpawnPayload{
		BotID:        "bot1",
		UserID:       "user1",
		Bot:          &domain.Bot{ID: "bot1", UserID: "user1", PriorityFeeLamports: 5000},
		Strategy:     strat,
		TargetTrader: "Trader1",
	}
}

func txEvent(sig string, typ domain.ActionType, sol, tokens float64) *ipc.TxEventPayload {
	return &ipc.TxEventPayload{
		BotID: "bot1",
		Event: &domain.TxEvent{
			Tx: domain.TxNotification{Signature: sig},
			Actions: []domain.TxAction{{
				Type:        typ,
				Venue:       domain.VenuePumpFun,
				Source:      "Trader1",
				Mint:        "Mint1",
				SolChange:   sol,
				TokenAmount: tokens,
			}},
		},
	}
}

func TestWorker_StopBeforeSpawn(t *testing.T) {
	h := startWorker(t, Options{Executor: &fakeTrader{}})
	h.send(t, ipc.TypeStop, nil)
	assert.Equal(t, ExitOK, h.exitCode(t))
}

func TestWorker_MissingTargetExitsWithConfigError(t *testing.T) {
	h := startWorker(t, Options{Executor: &fakeTrader{}})

	spawn := testSpawn()
	spawn.TargetTrader = ""
	h.send(t, ipc.TypeSpawn, spawn)

	logMsg := h.next(t, ipc.TypeLogEvent)
	entry, err := logMsg.Log()
	require.NoError(t, err)
	assert.Contains(t, entry.Info, "failed to start")

	st := h.finalStatus(t)
	assert.Equal(t, string(StateTerminated), st.State)
	assert.False(t, st.IsActive)
	assert.Equal(t, ExitConfigError, h.exitCode(t))
}

func TestWorker_MismatchedKeypairRejected(t *testing.T) {
	h := startWorker(t, Options{Executor: &fakeTrader{}})

	spawn := testSpawn()
	spawn.SecretKey = "not-a-key"
	h.send(t, ipc.TypeSpawn, spawn)

	assert.Equal(t, ExitConfigError, h.exitCode(t))
}

func TestWorker_MirrorsBuyAndStops(t *testing.T) {
	trader := &fakeTrader{}
	h := startWorker(t, Options{Executor: trader})

	h.send(t, ipc.TypeSpawn, testSpawn())
	first, err := h.next(t, ipc.TypeStatusUpdate).Status()
	require.NoError(t, err)
	assert.Equal(t, string(StateRunning), first.State)
	assert.True(t, first.IsActive)

	h.send(t, ipc.TypeTxEvent, txEvent("src1", domain.ActionVenueBuy, -2, 1000))

	rec, err := h.next(t, ipc.TypeTradeNotification).Trade()
	require.NoError(t, err)
	assert.True(t, rec.Success)
	assert.Equal(t, domain.SideBuy, rec.Side)
	assert.Equal(t, domain.ReasonMirrorBuy, rec.Reason)
	assert.Equal(t, "buy-sig", rec.Signature)
	assert.Equal(t, "src1", rec.SourceSignature)
	assert.InDelta(t, 1.0, rec.SolAmount, 1e-9)
	assert.InDelta(t, 500.0, rec.TokenAmount, 1e-6)

	require.Len(t, trader.buys, 1)
	assert.Equal(t, "1", trader.buys[0].SolAmount.String())
	assert.Equal(t, domain.VenuePumpFun, trader.buys[0].Venue)
	assert.Equal(t, uint64(5000), trader.buys[0].PriorityFeeLamports)

	h.send(t, ipc.TypeStop, nil)
	st := h.finalStatus(t)
	assert.Equal(t, string(StateTerminated), st.State)
	assert.False(t, st.IsActive)
	assert.Equal(t, 1, st.TradesExecuted)
	assert.NotNil(t, st.LastTradeTime)
	assert.Equal(t, ExitOK, h.exitCode(t))
}

func TestWorker_MirrorsSellProportionally(t *testing.T) {
	trader := &fakeTrader{}
	h := startWorker(t, Options{Executor: trader})

	h.send(t, ipc.TypeSpawn, testSpawn())
	h.send(t, ipc.TypeTxEvent, txEvent("src1", domain.ActionVenueBuy, -2, 1000))
	h.send(t, ipc.TypeTxEvent, txEvent("src2", domain.ActionVenueSell, 1, 500))

	buy, err := h.next(t, ipc.TypeTradeNotification).Trade()
	require.NoError(t, err)
	assert.Equal(t, domain.SideBuy, buy.Side)

	sell, err := h.next(t, ipc.TypeTradeNotification).Trade()
	require.NoError(t, err)
	assert.Equal(t, domain.SideSell, sell.Side)
	assert.Equal(t, domain.ReasonMirrorSell, sell.Reason)
	assert.InDelta(t, 250.0, sell.TokenAmount, 1e-6)

	h.send(t, ipc.TypeStop, nil)
	st := h.finalStatus(t)
	assert.Equal(t, 2, st.TradesExecuted)
	require.Len(t, st.Tokens, 1)
	assert.InDelta(t, 250.0, st.Tokens[0].TotalSold, 1e-6)

	require.Len(t, trader.sells, 1)
	assert.False(t, trader.sells[0].SellAll)
	assert.Nil(t, trader.sells[0].TokenDecimals, "decimals unknown to the decoder stay unset")
}

func TestWorker_SellUsesMintDecimals(t *testing.T) {
	trader := &fakeTrader{}
	h := startWorker(t, Options{Executor: trader})

	nine := int32(9)
	buy := txEvent("src1", domain.ActionVenueBuy, -2, 1000)
	sell := txEvent("src2", domain.ActionVenueSell, 1, 500)
	for _, ev := range []*ipc.TxEventPayload{buy, sell} {
		ev.Event.Actions[0].Venue = domain.VenueRaydium
		ev.Event.Actions[0].Decimals = &nine
	}

	h.send(t, ipc.TypeSpawn, testSpawn())
	h.send(t, ipc.TypeTxEvent, buy)
	h.send(t, ipc.TypeTxEvent, sell)
	h.next(t, ipc.TypeTradeNotification)
	h.next(t, ipc.TypeTradeNotification)
	h.send(t, ipc.TypeStop, nil)
	h.finalStatus(t)

	trader.mu.Lock()
	defer trader.mu.Unlock()
	require.Len(t, trader.sells, 1)
	req := trader.sells[0]
	require.NotNil(t, req.TokenDecimals)
	assert.Equal(t, int32(9), *req.TokenDecimals)
	assert.Equal(t, "250000000000", executor.BaseUnits(req.TokenAmount, *req.TokenDecimals))
}

func TestWorker_IgnoresOtherWallets(t *testing.T) {
	trader := &fakeTrader{}
	h := startWorker(t, Options{Executor: trader})

	h.send(t, ipc.TypeSpawn, testSpawn())
	ev := txEvent("src1", domain.ActionVenueBuy, -2, 1000)
	ev.Event.Actions[0].Source = "SomeoneElse"
	h.send(t, ipc.TypeTxEvent, ev)
	h.send(t, ipc.TypeStop, nil)

	st := h.finalStatus(t)
	assert.Equal(t, 0, st.TradesExecuted)
	assert.Equal(t, 0, trader.buyCount())
}

func TestWorker_FailedTradeCountsError(t *testing.T) {
	trader := &fakeTrader{err: errors.New("execution service down")}
	h := startWorker(t, Options{Executor: trader})

	h.send(t, ipc.TypeSpawn, testSpawn())
	h.send(t, ipc.TypeTxEvent, txEvent("src1", domain.ActionVenueBuy, -2, 1000))

	rec, err := h.next(t, ipc.TypeTradeNotification).Trade()
	require.NoError(t, err)
	assert.False(t, rec.Success)
	assert.Contains(t, rec.Error, "execution service down")

	h.send(t, ipc.TypeStop, nil)
	st := h.finalStatus(t)
	assert.Equal(t, 1, st.Errors)
	assert.Equal(t, 0, st.TradesExecuted)
}

func TestWorker_BalanceGuard(t *testing.T) {
	trader := &fakeTrader{}
	rpc := stub.NewRPCClient()
	rpc.Balances["BotWallet"] = 500_000_000
	h := startWorker(t, Options{
		Executor:        trader,
		RPC:             rpc,
		ReserveLamports: 10_000_000,
	})

	spawn := testSpawn()
	spawn.PublicKey = "BotWallet"
	h.send(t, ipc.TypeSpawn, spawn)
	h.send(t, ipc.TypeTxEvent, txEvent("src1", domain.ActionVenueBuy, -2, 1000))

	rec, err := h.next(t, ipc.TypeTradeNotification).Trade()
	require.NoError(t, err)
	assert.False(t, rec.Success)
	assert.Contains(t, rec.Error, ErrInsufficientBalance.Error())
	assert.Equal(t, 0, trader.buyCount())
}

func TestWorker_EndOfInputStops(t *testing.T) {
	h := startWorker(t, Options{Executor: &fakeTrader{}})

	h.send(t, ipc.TypeSpawn, testSpawn())
	h.next(t, ipc.TypeStatusUpdate)
	require.NoError(t, h.in.Close())

	st := h.finalStatus(t)
	assert.Equal(t, string(StateTerminated), st.State)
	assert.Equal(t, ExitOK, h.exitCode(t))
}

func TestWorker_PeriodicStatus(t *testing.T) {
	h := startWorker(t, Options{Executor: &fakeTrader{}, StatusInterval: 10 * time.Millisecond})

	h.send(t, ipc.TypeSpawn, testSpawn())
	for i := 0; i < 3; i++ {
		st, err := h.next(t, ipc.TypeStatusUpdate).Status()
		require.NoError(t, err)
		assert.Equal(t, "bot1", st.BotID)
		assert.Equal(t, "mirror", st.Strategy)
	}
	h.send(t, ipc.TypeStop, nil)
	assert.Equal(t, ExitOK, h.exitCode(t))
}
