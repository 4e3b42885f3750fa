// Package executor calls the trade execution service that signs and sends
// venue transactions on behalf of bot wallets.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout       = 60 * time.Second
	DefaultRetries       = 2
	DefaultRetryDelay    = 1 * time.Second
	DefaultRatePerSecond = 5
	DefaultBurst         = 5
	DefaultTokenDecimals = 6
)

// Client is the execution service client.
type Client struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	retries    int
	retryDelay time.Duration
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*response]
	logger     zerolog.Logger
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithRetries sets how many times a not-yet-available failure is retried.
func WithRetries(n int) Option {
	return func(c *Client) {
		c.retries = n
	}
}

// WithRetryDelay sets the fixed delay between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithRateLimit throttles requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the service at baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		client:     &http.Client{Timeout: DefaultTimeout},
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRatePerSecond), DefaultBurst),
		logger:     log.Logger.With().Str("component", "executor").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "executor",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// trade-level rejections mean the service is up
		IsSuccessful: func(err error) bool {
			var te *TradeError
			return err == nil || (errors.As(err, &te) && te.Status < http.StatusInternalServerError) ||
				errors.Is(err, ErrCurveComplete) || errors.Is(err, ErrNotYetAvailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	return c
}

// Buy spends SOL on a mint. A bonding-curve buy rejected because the curve
// completed is retried on the AMM.
func (c *Client) Buy(ctx context.Context, req BuyRequest) (*Result, error) {
	body := buyBody{
		BotID:               req.BotID,
		MintAddress:         req.Mint,
		AmountInLamports:    Lamports(req.SolAmount),
		PriorityFeeLamports: req.PriorityFeeLamports,
		DestinationAddress:  req.Destination,
		APIKey:              c.apiKey,
	}
	if body.AmountInLamports == 0 {
		return nil, fmt.Errorf("buy %s: zero amount", req.Mint)
	}

	switch req.Venue {
	case domain.VenueRaydium:
		return c.execute(ctx, EndpointBuyRaydium, domain.VenueRaydium, body)
	case domain.VenuePumpFun, domain.VenuePhoton, "":
		res, err := c.execute(ctx, EndpointBuyPumpFun, domain.VenuePumpFun, body)
		if errors.Is(err, ErrCurveComplete) {
			c.logger.Info().Str("mint", req.Mint).Msg("curve complete, buying on raydium")
			res, err = c.execute(ctx, EndpointBuyRaydium, domain.VenueRaydium, body)
			if res != nil {
				res.CurveCompleted = true
			}
		}
		return res, err
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVenue, req.Venue)
	}
}

// Sell sells tokens of a mint with the same curve fallback as Buy.
func (c *Client) Sell(ctx context.Context, req SellRequest) (*Result, error) {
	body := sellBody{
		BotID:               req.BotID,
		MintAddress:         req.Mint,
		TokenAmount:         BaseUnits(req.TokenAmount, tokenDecimals(req.TokenDecimals)),
		SellAll:             req.SellAll,
		PriorityFeeLamports: req.PriorityFeeLamports,
		APIKey:              c.apiKey,
	}
	if body.TokenAmount == "0" && !req.SellAll {
		return nil, fmt.Errorf("sell %s: zero amount", req.Mint)
	}

	switch req.Venue {
	case domain.VenueRaydium:
		return c.execute(ctx, EndpointSellRaydium, domain.VenueRaydium, body)
	case domain.VenuePumpFun, domain.VenuePhoton, "":
		res, err := c.execute(ctx, EndpointSellPumpFun, domain.VenuePumpFun, body)
		if errors.Is(err, ErrCurveComplete) {
			c.logger.Info().Str("mint", req.Mint).Msg("curve complete, selling on raydium")
			res, err = c.execute(ctx, EndpointSellRaydium, domain.VenueRaydium, body)
			if res != nil {
				res.CurveCompleted = true
			}
		}
		return res, err
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVenue, req.Venue)
	}
}

// Transfer moves tokens of a mint to another wallet.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*Result, error) {
	body := transferBody{
		BotID:       req.BotID,
		MintAddress: req.Mint,
		ToAddress:   req.ToAddress,
		Amount:      BaseUnits(req.TokenAmount, tokenDecimals(req.TokenDecimals)),
		APIKey:      c.apiKey,
	}
	if req.ToAddress == "" {
		return nil, fmt.Errorf("transfer %s: missing destination", req.Mint)
	}
	return c.execute(ctx, EndpointTransfer, "", body)
}

func tokenDecimals(d *int32) int32 {
	if d == nil {
		return DefaultTokenDecimals
	}
	return *d
}

// execute posts body to endpoint, retrying not-yet-available failures with
// a fixed delay.
func (c *Client) execute(ctx context.Context, endpoint, venue string, body any) (*Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", endpoint, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Debug().Str("endpoint", endpoint).Int("attempt", attempt).Msg("retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		resp, err := c.call(ctx, endpoint, payload)
		if err == nil {
			return &Result{Signature: resp.signature(), Venue: venue, Endpoint: endpoint}, nil
		}
		lastErr = err
		if !errors.Is(err, ErrNotYetAvailable) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: retries exhausted: %w", endpoint, lastErr)
}

func (c *Client) call(ctx context.Context, endpoint string, payload []byte) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.post(ctx, endpoint, payload)
	})
	observability.RecordExecutorRequest(endpoint, outcome(err), time.Since(start).Seconds())
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	return resp, err
}

func (c *Client) post(ctx context.Context, endpoint string, payload []byte) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: http request: %w", endpoint, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", endpoint, err)
	}

	var resp response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &TradeError{Endpoint: endpoint, Status: httpResp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}
	if httpResp.StatusCode != http.StatusOK || !resp.Success {
		msg := resp.message()
		if msg == "" {
			msg = http.StatusText(httpResp.StatusCode)
		}
		return nil, &TradeError{Endpoint: endpoint, Status: httpResp.StatusCode, Message: msg}
	}
	return &resp, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCurveComplete):
		return "curve_complete"
	case errors.Is(err, ErrNotYetAvailable):
		return "not_yet_available"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	default:
		return "error"
	}
}
