package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
	"github.com/lattibeaudiere/eigenclaw/internal/retry"
)

// rpcHandler 实现最小的 JSON-RPC 应答器。
func rpcHandler(t *testing.T, respond func(method string, w http.ResponseWriter, id json.RawMessage)) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		respond(req.Method, w, req.ID)
	}
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(id) + `,"result":` + result + `}`))
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	body, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"error":   map[string]any{"code": code, "message": msg},
	})
	_, _ = w.Write(body)
}

func noSleep(context.Context, time.Duration) error { return nil }

func dialTest(t *testing.T, server *httptest.Server, retries int) *Client {
	t.Helper()
	client, err := Dial(context.Background(),
		Endpoint{URL: server.URL, Timeout: 5 * time.Second, Retries: retries, ChunkSize: 100},
		WithRetryExecutor(retry.New(retries, retry.WithSleeper(noSleep))),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestClientChainIDDecodesHex(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(method string, w http.ResponseWriter, id json.RawMessage) {
		if method != "eth_chainId" {
			t.Errorf("unexpected method %s", method)
		}
		writeResult(w, id, `"0xa4b1"`)
	}))
	defer server.Close()

	client := dialTest(t, server, 0)
	chainID, err := client.ChainID(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chainID != 42161 {
		t.Fatalf("chainID = %d, want 42161", chainID)
	}
}

func TestClientClassifiesRemoteError(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(_ string, w http.ResponseWriter, id json.RawMessage) {
		writeError(w, id, -32000, "header not found")
	}))
	defer server.Close()

	client := dialTest(t, server, 0)
	_, err := client.BlockNumber(context.Background())
	if xerrors.CodeOf(err) != xerrors.CodeRemoteError {
		t.Fatalf("expected REMOTE_ERROR, got %v", err)
	}
}

func TestClientRetriesTransientFailure(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		rpcHandler(t, func(_ string, w http.ResponseWriter, id json.RawMessage) {
			writeResult(w, id, `"0x10"`)
		})(w, r)
	}))
	defer server.Close()

	client := dialTest(t, server, 2)
	height, err := client.BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if height != 16 || calls != 2 {
		t.Fatalf("height=%d calls=%d", height, calls)
	}
}

func TestClientLogsReturnsEmptySliceForNullResult(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(_ string, w http.ResponseWriter, id json.RawMessage) {
		writeResult(w, id, `null`)
	}))
	defer server.Close()

	client := dialTest(t, server, 0)
	logs, err := client.Logs(context.Background(), Filter{FromBlock: TagLatest, ToBlock: TagLatest})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logs == nil || len(logs) != 0 {
		t.Fatalf("expected empty slice, got %v", logs)
	}
}

func TestClientRejectsMalformedHashWithoutCalling(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	client := dialTest(t, server, 3)
	_, err := client.TransactionByHash(context.Background(), "0xdeadbeef")
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("malformed input must not reach the wire, calls=%d", calls)
	}
}

func TestParseQuantityVariants(t *testing.T) {
	cases := []struct {
		raw  string
		want uint64
	}{
		{`"0xa4b1"`, 42161},
		{`"42161"`, 42161},
		{`42161`, 42161},
	}
	for _, tc := range cases {
		got, err := parseQuantity(json.RawMessage(tc.raw))
		if err != nil || got != tc.want {
			t.Fatalf("parseQuantity(%s) = %d, %v", tc.raw, got, err)
		}
	}
	if _, err := parseQuantity(json.RawMessage(`"zzz"`)); err == nil {
		t.Fatalf("expected error for garbage quantity")
	}
}
