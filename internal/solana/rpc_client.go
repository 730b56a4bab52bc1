package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"solana-whale-tracker/internal/observability"
)

// DefaultCommitment is used for every read unless overridden.
const DefaultCommitment = "confirmed"

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultAttempts    = 4
	defaultBackoffBase = time.Second
	defaultBackoffMax  = 10 * time.Second
	maxErrorBody       = 512
)

// RPCError is an error object returned inside a JSON-RPC response.
// It is final: the same request would fail again.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPStatusError is a non-200 reply from the node.
type HTTPStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration // parsed from Retry-After on 429, else 0
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("rpc http status %d", e.StatusCode)
	}
	return fmt.Sprintf("rpc http status %d: %s", e.StatusCode, e.Body)
}

// HTTPClient is an RPCClient speaking JSON-RPC 2.0 over HTTP.
//
// Transport failures and 429/5xx replies are retried with capped exponential
// backoff; an optional token bucket keeps the client under a public node's
// request quota.
type HTTPClient struct {
	endpoint   string
	http       *http.Client
	commitment string
	limiter    *rate.Limiter // nil means unlimited

	attempts    int
	backoffBase time.Duration
	backoffMax  time.Duration

	ids atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout bounds each HTTP round trip.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) { c.http = hc }
}

// WithCommitment overrides DefaultCommitment.
func WithCommitment(commitment string) ClientOption {
	return func(c *HTTPClient) {
		if commitment != "" {
			c.commitment = commitment
		}
	}
}

// WithRetry sets the total number of attempts per call and the backoff bounds.
// attempts below 1 is treated as 1.
func WithRetry(attempts int, base, maxDelay time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if attempts < 1 {
			attempts = 1
		}
		c.attempts = attempts
		c.backoffBase = base
		c.backoffMax = maxDelay
	}
}

// WithRequestRate caps outgoing requests to rps per second with the given burst.
// A non-positive rps disables the cap.
func WithRequestRate(rps float64, burst int) ClientOption {
	return func(c *HTTPClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewHTTPClient creates a client for endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		http:        &http.Client{Timeout: defaultHTTPTimeout},
		commitment:  DefaultCommitment,
		attempts:    defaultAttempts,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// call runs method and decodes the result into out, retrying transient failures.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
		if err != nil {
			observability.RecordRPCError(method)
		}
	}()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.ids.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", method, err)
	}

	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.backoff(attempt, lastErr)); err != nil {
				return err
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		result, err := c.post(ctx, body)
		if err == nil {
			if out == nil || len(result) == 0 {
				return nil
			}
			if err := json.Unmarshal(result, out); err != nil {
				return fmt.Errorf("%s: decode result: %w", method, err)
			}
			return nil
		}
		if !retryable(err) || ctx.Err() != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		lastErr = err
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", method, c.attempts, lastErr)
}

// post performs one round trip and returns the raw result.
func (c *HTTPClient) post(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(snippet)),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, decoded.Error
	}
	return decoded.Result, nil
}

// backoff is base*2^(attempt-1) capped at backoffMax, or the server's Retry-After when longer.
func (c *HTTPClient) backoff(attempt int, lastErr error) time.Duration {
	d := c.backoffBase << (attempt - 1)
	if d <= 0 || d > c.backoffMax {
		d = c.backoffMax
	}
	var se *HTTPStatusError
	if errors.As(lastErr, &se) && se.RetryAfter > d {
		d = se.RetryAfter
	}
	return d
}

func retryable(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

// retryAfter parses the delay-seconds form of Retry-After.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type txEnvelope struct {
	Slot      int64   `json:"slot"`
	BlockTime *int64  `json:"blockTime"`
	Meta      *txMeta `json:"meta"`
}

type txMeta struct {
	Err               interface{}      `json:"err"`
	PreTokenBalances  []wireTokenAmount `json:"preTokenBalances"`
	PostTokenBalances []wireTokenAmount `json:"postTokenBalances"`
}

type wireTokenAmount struct {
	AccountIndex int    `json:"accountIndex"`
	Mint         string `json:"mint"`
	Owner        string `json:"owner"`
	UI           struct {
		Amount         string `json:"amount"`
		Decimals       int    `json:"decimals"`
		UIAmountString string `json:"uiAmountString"`
	} `json:"uiTokenAmount"`
}

func (w wireTokenAmount) balance() TokenBalance {
	return TokenBalance{
		AccountIndex:   w.AccountIndex,
		Mint:           w.Mint,
		Owner:          w.Owner,
		Decimals:       w.UI.Decimals,
		Amount:         w.UI.Amount,
		UIAmountString: w.UI.UIAmountString,
	}
}

func balances(in []wireTokenAmount) []TokenBalance {
	if len(in) == 0 {
		return nil
	}
	out := make([]TokenBalance, 0, len(in))
	for _, w := range in {
		out = append(out, w.balance())
	}
	return out
}

// GetTransaction fetches signature with JSON encoding, accepting versioned transactions.
func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	var env *txEnvelope
	err := c.call(ctx, "getTransaction", []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"commitment":                     c.commitment,
			"maxSupportedTransactionVersion": 0,
		},
	}, &env)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, nil
	}

	tx := &Transaction{Signature: signature, Slot: env.Slot}
	if env.BlockTime != nil {
		tx.BlockTime = *env.BlockTime
	}
	if env.Meta != nil {
		tx.Meta = &TransactionMeta{
			Err:               env.Meta.Err,
			PreTokenBalances:  balances(env.Meta.PreTokenBalances),
			PostTokenBalances: balances(env.Meta.PostTokenBalances),
		}
	}
	return tx, nil
}

type sigRow struct {
	Signature string      `json:"signature"`
	Slot      int64       `json:"slot"`
	BlockTime *int64      `json:"blockTime"`
	Err       interface{} `json:"err"`
}

// GetSignaturesForAddress lists recent signatures for address, newest first.
func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	cfg := map[string]interface{}{"commitment": c.commitment}
	if opts != nil {
		if opts.Limit > 0 {
			cfg["limit"] = opts.Limit
		}
		if opts.Before != "" {
			cfg["before"] = opts.Before
		}
		if opts.Until != "" {
			cfg["until"] = opts.Until
		}
	}

	var rows []sigRow
	if err := c.call(ctx, "getSignaturesForAddress", []interface{}{address, cfg}, &rows); err != nil {
		return nil, err
	}

	out := make([]SignatureInfo, len(rows))
	for i, r := range rows {
		out[i] = SignatureInfo(r)
	}
	return out, nil
}
