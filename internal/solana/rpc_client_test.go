package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcServer answers every request with result, or with the handler's status
// for the first failures attempts.
func rpcServer(t *testing.T, failures int32, status int, result any) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= failures {
			w.WriteHeader(status)
			return
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv, &attempts
}

func TestHTTPClient_GetBalance(t *testing.T) {
	var method string
	var params []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		method, params = req.Method, req.Params
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]any{"context": map[string]any{"slot": 1}, "value": uint64(2_500_000_000)},
		})
	}))
	defer srv.Close()

	lamports, err := NewHTTPClient(srv.URL).GetBalance(context.Background(), "wallet1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000_000), lamports)
	assert.Equal(t, "getBalance", method)
	require.NotEmpty(t, params)
	assert.Equal(t, "wallet1", params[0])
}

func TestHTTPClient_GetTokenBalance(t *testing.T) {
	account := func(ui float64) map[string]any {
		return map[string]any{
			"pubkey": "ata",
			"account": map[string]any{"data": map[string]any{"parsed": map[string]any{"info": map[string]any{
				"mint":        "mint1",
				"owner":       "wallet1",
				"tokenAmount": map[string]any{"amount": "0", "decimals": 6, "uiAmount": ui},
			}}}},
		}
	}
	srv, _ := rpcServer(t, 0, 0, map[string]any{"value": []any{account(100.5), account(0.5)}})

	balance, err := NewHTTPClient(srv.URL).GetTokenBalance(context.Background(), "wallet1", "mint1")
	require.NoError(t, err)
	assert.Equal(t, 101.0, balance)
}

func TestHTTPClient_RetriesTransientFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"rate limited", http.StatusTooManyRequests},
		{"server error", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, attempts := rpcServer(t, 2, tt.status, map[string]any{"value": 7})
			client := NewHTTPClient(srv.URL, WithMaxRetries(3), WithRetryDelay(5*time.Millisecond))

			lamports, err := client.GetBalance(context.Background(), "wallet1")
			require.NoError(t, err)
			assert.Equal(t, uint64(7), lamports)
			assert.Equal(t, int32(3), attempts.Load())
		})
	}
}

func TestHTTPClient_GivesUp(t *testing.T) {
	srv, attempts := rpcServer(t, 100, http.StatusServiceUnavailable, nil)
	client := NewHTTPClient(srv.URL, WithMaxRetries(2), WithRetryDelay(time.Millisecond))

	_, err := client.GetBalance(context.Background(), "wallet1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestHTTPClient_ClientErrorNotRetried(t *testing.T) {
	srv, attempts := rpcServer(t, 100, http.StatusUnauthorized, nil)
	client := NewHTTPClient(srv.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond))

	_, err := client.GetBalance(context.Background(), "wallet1")
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestHTTPClient_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": -32602, "message": "Invalid param: WrongSize"},
		})
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).GetBalance(context.Background(), "bad")
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "got %T", err)
	assert.Equal(t, -32602, rpcErr.Code)
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	srv, _ := rpcServer(t, 0, 0, map[string]any{"value": 1})
	client := NewHTTPClient(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetBalance(ctx, "wallet1")
	assert.Error(t, err)
}

func TestRetryAfter(t *testing.T) {
	h := http.Header{}
	assert.Zero(t, retryAfter(h))
	h.Set("Retry-After", "2")
	assert.Equal(t, 2*time.Second, retryAfter(h))
	h.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	assert.Zero(t, retryAfter(h))
}
