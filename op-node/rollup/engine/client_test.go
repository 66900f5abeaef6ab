package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	opclient "github.com/opstack-alt/rollup-node/op-service/client"
)

type fakeAppError struct{ code int }

func (e fakeAppError) Error() string  { return fmt.Sprintf("application error %d", e.code) }
func (e fakeAppError) ErrorCode() int { return e.code }

func TestIsApplicationErrorClassifiesJSONRPCErrors(t *testing.T) {
	require.True(t, isApplicationError(fakeAppError{code: -32000}))
	require.False(t, isApplicationError(errors.New("connection refused")))
	require.False(t, isApplicationError(context.DeadlineExceeded))
}

func fastRetryConfig() opclient.RetryConfig {
	return opclient.RetryConfig{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxElapsedTime: 500 * time.Millisecond}
}

// jsonRPCRequest is the minimal envelope the go-ethereum rpc client posts.
type jsonRPCRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

func TestCallSurfacesApplicationErrorWithoutRetrying(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32000,"message":"unknown payload"}}`, string(req.ID))
	}))
	defer srv.Close()

	rpcClient, err := rpc.DialContext(context.Background(), srv.URL)
	require.NoError(t, err)
	defer rpcClient.Close()

	c := &Client{log: log.NewLogger(log.DiscardHandler()), rpc: rpcClient, retry: fastRetryConfig()}
	var result struct{}
	err = c.call(context.Background(), "engine_getPayloadV1", &result)
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestCallRetriesTransportFailuresUntilSuccess(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		if n < 3 {
			// malformed body: not an application-level JSON-RPC error, so
			// the engine client treats it as a retryable transport failure.
			fmt.Fprint(w, `not json`)
			return
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":true}`, string(req.ID))
	}))
	defer srv.Close()

	rpcClient, err := rpc.DialContext(context.Background(), srv.URL)
	require.NoError(t, err)
	defer rpcClient.Close()

	c := &Client{log: log.NewLogger(log.DiscardHandler()), rpc: rpcClient, retry: fastRetryConfig()}
	var result bool
	err = c.call(context.Background(), "engine_getPayloadV1", &result)
	require.NoError(t, err)
	require.True(t, result)
	require.Equal(t, int32(3), atomic.LoadInt32(&hits))
}
