package stub

import (
	"context"
	"sync"

	"solana-copy-bot/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu            sync.Mutex
	Balances      map[string]uint64  // address -> lamports
	TokenBalances map[string]float64 // owner|mint -> UI amount
	Err           error
	Calls         int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances:      make(map[string]uint64),
		TokenBalances: make(map[string]float64),
	}
}

var _ solana.RPCClient = (*RPCClient)(nil)

// SetTokenBalance sets owner's balance of mint.
func (c *RPCClient) SetTokenBalance(owner, mint string, amount float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenBalances[owner+"|"+mint] = amount
}

// GetBalance returns the stubbed lamport balance.
func (c *RPCClient) GetBalance(_ context.Context, address string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	if c.Err != nil {
		return 0, c.Err
	}
	return c.Balances[address], nil
}

// GetTokenBalance returns the stubbed token balance.
func (c *RPCClient) GetTokenBalance(_ context.Context, owner, mint string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	if c.Err != nil {
		return 0, c.Err
	}
	return c.TokenBalances[owner+"|"+mint], nil
}
