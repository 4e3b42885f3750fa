package solana

import "context"

// RPCClient defines the Solana RPC HTTP calls the bots need.
type RPCClient interface {
	// GetBalance returns the native balance of address in lamports.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// GetTokenBalance returns owner's UI balance of mint.
	GetTokenBalance(ctx context.Context, owner, mint string) (float64, error)
}

var _ RPCClient = (*HTTPClient)(nil)
