package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/observability"
	"solana-copy-bot/internal/storage"
)

// BotStore implements storage.BotStore using PostgreSQL.
type BotStore struct {
	pool *Pool
}

// NewBotStore creates a new BotStore.
func NewBotStore(pool *Pool) *BotStore {
	return &BotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BotStore = (*BotStore)(nil)

const selectBot = `
	SELECT
		b.id, b.name, b.user_id, b.wallet_public_key, b.buy_ratio, b.priority_fee_lamports,
		b.created_at, b.updated_at,
		ew.id, ew.address,
		t.id, t.name, tw.id, tw.address,
		s.id, s.name, s.max_buy_amount, s.intended_trade_ratio,
		s.stop_loss_percentage, s.take_profit_percentage,
		s.should_copy_buys, s.should_copy_sells, s.should_eject_on_buy,
		s.should_eject_on_curve, s.should_sell_on_curve,
		s.priority_fee, s.slippage_percentage
	FROM bots b
	LEFT JOIN wallets ew ON ew.id = b.eject_wallet_id
	LEFT JOIN trader_strategy_unions u ON u.bot_id = b.id AND u.is_active
	LEFT JOIN traders t ON t.id = u.trader_id
	LEFT JOIN wallets tw ON tw.id = t.wallet_id
	LEFT JOIN strategies s ON s.id = u.strategy_id
`

// CreateBot adds a bot with its trader, strategy and active union in one
// transaction. Returns ErrDuplicateKey if the id exists.
func (s *BotStore) CreateBot(ctx context.Context, b *domain.Bot) error {
	if b == nil || b.ID == "" || b.UserID == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var ejectID *string
	if b.EjectWallet != nil {
		w, err := resolveWallet(ctx, tx, b.EjectWallet.Address)
		if err != nil {
			return err
		}
		ejectID = &w.ID
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bots (
			id, name, user_id, wallet_public_key, eject_wallet_id,
			buy_ratio, priority_fee_lamports, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		b.ID, b.Name, b.UserID, b.WalletPublicKey, ejectID,
		b.BuyRatio, int64(b.PriorityFeeLamports), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert bot: %w", err)
	}

	var traderID, strategyID *string
	if b.Trader != nil {
		w, err := resolveWallet(ctx, tx, b.Trader.Wallet.Address)
		if err != nil {
			return err
		}
		id := b.Trader.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO traders (id, name, wallet_id) VALUES ($1, $2, $3)`,
			id, b.Trader.Name, w.ID,
		); err != nil {
			return fmt.Errorf("insert trader: %w", err)
		}
		traderID = &id
	}
	if b.Strategy != nil {
		st := b.Strategy
		id := st.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO strategies (
				id, name, max_buy_amount, intended_trade_ratio,
				stop_loss_percentage, take_profit_percentage,
				should_copy_buys, should_copy_sells, should_eject_on_buy,
				should_eject_on_curve, should_sell_on_curve,
				priority_fee, slippage_percentage
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`,
			id, st.Name, st.MaxBuyAmount, st.IntendedTradeRatio,
			st.StopLossPercentage, st.TakeProfitPercentage,
			st.ShouldCopyBuys, st.ShouldCopySells, st.ShouldEjectOnBuy,
			st.ShouldEjectOnCurve, st.ShouldSellOnCurve,
			st.PriorityFee, st.SlippagePercentage,
		); err != nil {
			return fmt.Errorf("insert strategy: %w", err)
		}
		strategyID = &id
	}
	if traderID != nil || strategyID != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO trader_strategy_unions (bot_id, trader_id, strategy_id, is_active, created_at)
			VALUES ($1, $2, $3, TRUE, $4)
		`, b.ID, traderID, strategyID, b.CreatedAt); err != nil {
			return fmt.Errorf("insert trader strategy union: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetBot retrieves a bot with its active trader and strategy.
// Returns ErrNotFound if not exists.
func (s *BotStore) GetBot(ctx context.Context, botID string) (_ *domain.Bot, err error) {
	defer observe("get_bot", time.Now(), &err)

	row := s.pool.QueryRow(ctx, selectBot+` WHERE b.id = $1`, botID)
	b, err := scanBot(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get bot: %w", err)
	}
	return b, nil
}

// ListBots retrieves bots of a user, or all bots, ordered by created_at ASC.
func (s *BotStore) ListBots(ctx context.Context, userID string) (_ []*domain.Bot, err error) {
	defer observe("list_bots", time.Now(), &err)

	rows, err := s.pool.Query(ctx,
		selectBot+` WHERE ($1 = '' OR b.user_id = $1) ORDER BY b.created_at ASC, b.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	var result []*domain.Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bots: %w", err)
	}
	return result, nil
}

// UpdateBotSettings applies the non-nil settings and returns the updated bot.
func (s *BotStore) UpdateBotSettings(ctx context.Context, botID string, set domain.BotSettings) (*domain.Bot, error) {
	var fee *int64
	if set.PriorityFeeLamports != nil {
		v := int64(*set.PriorityFeeLamports)
		fee = &v
	}

	ejectID := set.EjectWalletID
	if set.EjectWalletAddress != nil && ejectID == nil {
		w, err := s.ResolveWallet(ctx, *set.EjectWalletAddress)
		if err != nil {
			return nil, err
		}
		ejectID = &w.ID
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE bots SET
			priority_fee_lamports = COALESCE($2, priority_fee_lamports),
			buy_ratio = COALESCE($3, buy_ratio),
			eject_wallet_id = COALESCE($4, eject_wallet_id),
			updated_at = $5
		WHERE id = $1
	`, botID, fee, set.BuyRatio, ejectID, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("update bot settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, storage.ErrNotFound
	}
	return s.GetBot(ctx, botID)
}

// ResolveWallet returns the wallet record for address, creating it when missing.
func (s *BotStore) ResolveWallet(ctx context.Context, address string) (*domain.Wallet, error) {
	if address == "" {
		return nil, storage.ErrInvalidInput
	}
	return resolveWallet(ctx, s.pool, address)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func resolveWallet(ctx context.Context, q querier, address string) (*domain.Wallet, error) {
	var w domain.Wallet
	err := q.QueryRow(ctx, `
		INSERT INTO wallets (id, address, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
		RETURNING id, address
	`, uuid.NewString(), address, time.Now().UnixMilli()).Scan(&w.ID, &w.Address)
	if err != nil {
		return nil, fmt.Errorf("resolve wallet: %w", err)
	}
	return &w, nil
}

func scanBot(row pgx.Row) (*domain.Bot, error) {
	var (
		b                     domain.Bot
		fee                   int64
		ejectID, ejectAddr    *string
		traderID, traderName  *string
		traderWID, traderAddr *string
		stID, stName          *string
		maxBuy, ratio, sl, tp *float64
		copyBuys, copySells   *bool
		ejectBuy, ejectCurve  *bool
		sellCurve             *bool
		prioFee, slippage     *float64
	)
	err := row.Scan(
		&b.ID, &b.Name, &b.UserID, &b.WalletPublicKey, &b.BuyRatio, &fee,
		&b.CreatedAt, &b.UpdatedAt,
		&ejectID, &ejectAddr,
		&traderID, &traderName, &traderWID, &traderAddr,
		&stID, &stName, &maxBuy, &ratio,
		&sl, &tp,
		&copyBuys, &copySells, &ejectBuy,
		&ejectCurve, &sellCurve,
		&prioFee, &slippage,
	)
	if err != nil {
		return nil, err
	}
	b.PriorityFeeLamports = uint64(fee)

	if ejectID != nil {
		b.EjectWallet = &domain.Wallet{ID: *ejectID, Address: deref(ejectAddr)}
	}
	if traderID != nil {
		b.Trader = &domain.Trader{
			ID:     *traderID,
			Name:   deref(traderName),
			Wallet: domain.Wallet{ID: deref(traderWID), Address: deref(traderAddr)},
		}
	}
	if stID != nil {
		b.Strategy = &domain.Strategy{
			ID:                   *stID,
			Name:                 deref(stName),
			MaxBuyAmount:         deref(maxBuy),
			IntendedTradeRatio:   deref(ratio),
			StopLossPercentage:   deref(sl),
			TakeProfitPercentage: deref(tp),
			ShouldCopyBuys:       deref(copyBuys),
			ShouldCopySells:      deref(copySells),
			ShouldEjectOnBuy:     deref(ejectBuy),
			ShouldEjectOnCurve:   deref(ejectCurve),
			ShouldSellOnCurve:    deref(sellCurve),
			PriorityFee:          deref(prioFee),
			SlippagePercentage:   deref(slippage),
		}
	}
	return &b, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func observe(op string, start time.Time, err *error) {
	observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), *err)
}
