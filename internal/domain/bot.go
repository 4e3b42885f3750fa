package domain

// Wallet is a stored wallet record.
type Wallet struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// Trader is a wallet whose trades a bot mirrors.
type Trader struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Wallet Wallet `json:"wallet"`
}

// Bot is a copy-trading bot with its identity and wallet references.
type Bot struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	UserID              string    `json:"userId"`
	WalletPublicKey     string    `json:"walletPublicKey"` // bot wallet keypair public key
	EjectWallet         *Wallet   `json:"ejectWallet,omitempty"`
	Trader              *Trader   `json:"trader,omitempty"`   // active trader, nil when unset
	Strategy            *Strategy `json:"strategy,omitempty"` // active strategy, nil when unset
	BuyRatio            float64   `json:"buyRatio"`
	PriorityFeeLamports uint64    `json:"priorityFeeInLamports"`
	CreatedAt           int64     `json:"createdAt"` // ms
	UpdatedAt           int64     `json:"updatedAt"` // ms
}

// TargetAddress returns the mirrored trader wallet address, or "".
func (b *Bot) TargetAddress() string {
	if b == nil || b.Trader == nil {
		return ""
	}
	return b.Trader.Wallet.Address
}

// EjectAddress returns the eject wallet address, or "".
func (b *Bot) EjectAddress() string {
	if b == nil || b.EjectWallet == nil {
		return ""
	}
	return b.EjectWallet.Address
}

// BotSettings is a partial update of bot settings. Nil fields are unchanged.
type BotSettings struct {
	PriorityFeeLamports *uint64  `json:"priorityFeeInLamports,omitempty"`
	BuyRatio            *float64 `json:"buyRatio,omitempty"`
	EjectWalletAddress  *string  `json:"ejectWalletAddress,omitempty"`
	EjectWalletID       *string  `json:"-"`
}

// Keypair is the bot wallet key material. SecretKey is base58.
type Keypair struct {
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"secretKey"`
}
