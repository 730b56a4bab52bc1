package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMint = "3ag1Mj9AKz9FAkCQ6gAEhpLSX8B2pUbPdkb9iBsDLZNB"

// fakeNode answers every JSON-RPC request with reply(req).
// A reply of type int is written as a bare HTTP status.
func fakeNode(t *testing.T, reply func(req rpcRequest) interface{}) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		switch v := reply(req).(type) {
		case int:
			w.WriteHeader(v)
		default:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(v)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func result(req rpcRequest, v interface{}) map[string]interface{} {
	return map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": v}
}

func tokenAmount(index int, owner, amount, ui string) map[string]interface{} {
	return map[string]interface{}{
		"accountIndex": index,
		"mint":         testMint,
		"owner":        owner,
		"uiTokenAmount": map[string]interface{}{
			"amount":         amount,
			"decimals":       6,
			"uiAmountString": ui,
		},
	}
}

func fastRetry(attempts int) ClientOption {
	return WithRetry(attempts, time.Millisecond, 5*time.Millisecond)
}

func TestGetTransaction_DecodesTokenBalances(t *testing.T) {
	srv, _ := fakeNode(t, func(req rpcRequest) interface{} {
		assert.Equal(t, "getTransaction", req.Method)
		if !assert.Len(t, req.Params, 2) {
			return http.StatusBadRequest
		}
		cfg, _ := req.Params[1].(map[string]interface{})
		assert.Equal(t, "json", cfg["encoding"])
		assert.Equal(t, float64(0), cfg["maxSupportedTransactionVersion"])

		return result(req, map[string]interface{}{
			"slot":      250000000,
			"blockTime": 1700000000,
			"meta": map[string]interface{}{
				"err":               nil,
				"preTokenBalances":  []interface{}{tokenAmount(1, "ownerA", "100000000", "100")},
				"postTokenBalances": []interface{}{tokenAmount(1, "ownerA", "155000000", "155"), tokenAmount(2, "ownerB", "5000000", "5")},
			},
		})
	})

	tx, err := NewHTTPClient(srv.URL).GetTransaction(context.Background(), "sigA")
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, "sigA", tx.Signature)
	assert.Equal(t, int64(250000000), tx.Slot)
	assert.Equal(t, int64(1700000000), tx.BlockTime)
	require.NotNil(t, tx.Meta)
	assert.False(t, tx.Meta.Failed())
	require.Len(t, tx.Meta.PreTokenBalances, 1)
	require.Len(t, tx.Meta.PostTokenBalances, 2)
	assert.Equal(t, TokenBalance{
		AccountIndex:   1,
		Mint:           testMint,
		Owner:          "ownerA",
		Decimals:       6,
		Amount:         "155000000",
		UIAmountString: "155",
	}, tx.Meta.PostTokenBalances[0])
}

func TestGetTransaction_FailedOnChain(t *testing.T) {
	srv, _ := fakeNode(t, func(req rpcRequest) interface{} {
		return result(req, map[string]interface{}{
			"slot": 1,
			"meta": map[string]interface{}{"err": map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
		})
	})

	tx, err := NewHTTPClient(srv.URL).GetTransaction(context.Background(), "sigF")
	require.NoError(t, err)
	assert.True(t, tx.Meta.Failed())
	assert.Zero(t, tx.BlockTime)
	assert.Nil(t, tx.Meta.PreTokenBalances)
}

func TestGetTransaction_Unknown(t *testing.T) {
	srv, _ := fakeNode(t, func(req rpcRequest) interface{} { return result(req, nil) })

	tx, err := NewHTTPClient(srv.URL).GetTransaction(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestGetSignaturesForAddress(t *testing.T) {
	srv, _ := fakeNode(t, func(req rpcRequest) interface{} {
		assert.Equal(t, "getSignaturesForAddress", req.Method)
		if !assert.Len(t, req.Params, 2) {
			return http.StatusBadRequest
		}
		assert.Equal(t, "walletA", req.Params[0])
		cfg, _ := req.Params[1].(map[string]interface{})
		assert.Equal(t, float64(10), cfg["limit"])
		assert.Equal(t, DefaultCommitment, cfg["commitment"])
		assert.NotContains(t, cfg, "before")

		return result(req, []map[string]interface{}{
			{"signature": "sig2", "slot": 101, "blockTime": 1700000100, "err": nil},
			{"signature": "sig1", "slot": 100, "blockTime": nil, "err": map[string]interface{}{"x": 1}},
		})
	})

	sigs, err := NewHTTPClient(srv.URL).GetSignaturesForAddress(context.Background(), "walletA", &SignaturesOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, "sig2", sigs[0].Signature)
	require.NotNil(t, sigs[0].BlockTime)
	assert.Equal(t, int64(1700000100), *sigs[0].BlockTime)
	assert.Nil(t, sigs[1].BlockTime)
	assert.NotNil(t, sigs[1].Err)
}

func TestCall_RetriesTransientStatus(t *testing.T) {
	var n atomic.Int32
	srv, hits := fakeNode(t, func(req rpcRequest) interface{} {
		switch n.Add(1) {
		case 1:
			return http.StatusTooManyRequests
		case 2:
			return http.StatusBadGateway
		}
		return result(req, []map[string]interface{}{{"signature": "sig1", "slot": 100}})
	})

	sigs, err := NewHTTPClient(srv.URL, fastRetry(3)).GetSignaturesForAddress(context.Background(), "walletA", nil)
	require.NoError(t, err)
	assert.Len(t, sigs, 1)
	assert.Equal(t, int32(3), hits.Load())
}

func TestCall_GivesUp(t *testing.T) {
	srv, hits := fakeNode(t, func(rpcRequest) interface{} { return http.StatusServiceUnavailable })

	_, err := NewHTTPClient(srv.URL, fastRetry(3)).GetTransaction(context.Background(), "sig")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")

	var se *HTTPStatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestCall_ClientErrorsAreFinal(t *testing.T) {
	srv, hits := fakeNode(t, func(rpcRequest) interface{} { return http.StatusBadRequest })

	_, err := NewHTTPClient(srv.URL, fastRetry(4)).GetTransaction(context.Background(), "sig")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCall_RPCErrorIsFinal(t *testing.T) {
	srv, hits := fakeNode(t, func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32602, "message": "Invalid param"},
		}
	})

	_, err := NewHTTPClient(srv.URL, fastRetry(4)).GetSignaturesForAddress(context.Background(), "bad", nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCall_CanceledContext(t *testing.T) {
	srv, _ := fakeNode(t, func(req rpcRequest) interface{} { return result(req, nil) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPClient(srv.URL, fastRetry(4)).GetTransaction(ctx, "sig")
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoff(t *testing.T) {
	c := NewHTTPClient("http://unused", WithRetry(5, 100*time.Millisecond, 300*time.Millisecond))

	assert.Equal(t, 100*time.Millisecond, c.backoff(1, nil))
	assert.Equal(t, 200*time.Millisecond, c.backoff(2, nil))
	assert.Equal(t, 300*time.Millisecond, c.backoff(3, nil))
	assert.Equal(t, 2*time.Second, c.backoff(1, &HTTPStatusError{StatusCode: 429, RetryAfter: 2 * time.Second}))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Zero(t, retryAfter(""))
	assert.Zero(t, retryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}

func TestWithRequestRate(t *testing.T) {
	assert.Nil(t, NewHTTPClient("x", WithRequestRate(0, 1)).limiter)

	c := NewHTTPClient("x", WithRequestRate(5, 0))
	require.NotNil(t, c.limiter)
	assert.Equal(t, 1, c.limiter.Burst())
}
