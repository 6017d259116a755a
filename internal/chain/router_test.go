package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

// fakeRPC 以可编程方式模拟链节点。
type fakeRPC struct {
	endpoint    Endpoint
	chainID     uint64
	blockNumber uint64
	tx          json.RawMessage
	receipt     json.RawMessage
	receiptErr  error
	logsFn      func(Filter) ([]json.RawMessage, error)
	filters     []Filter
}

func (f *fakeRPC) ChainID(context.Context) (uint64, error)     { return f.chainID, nil }
func (f *fakeRPC) BlockNumber(context.Context) (uint64, error) { return f.blockNumber, nil }

func (f *fakeRPC) TransactionByHash(_ context.Context, hash string) (json.RawMessage, error) {
	if f.tx == nil {
		return json.RawMessage("null"), nil
	}
	return f.tx, nil
}

func (f *fakeRPC) TransactionReceipt(_ context.Context, hash string) (json.RawMessage, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	if f.receipt == nil {
		return json.RawMessage("null"), nil
	}
	return f.receipt, nil
}

func (f *fakeRPC) Logs(_ context.Context, filter Filter) ([]json.RawMessage, error) {
	f.filters = append(f.filters, filter)
	if f.logsFn != nil {
		return f.logsFn(filter)
	}
	return []json.RawMessage{}, nil
}

func (f *fakeRPC) Endpoint() Endpoint { return f.endpoint }

const testHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

func newFake() *fakeRPC {
	return &fakeRPC{
		endpoint:    Endpoint{URL: "https://rpc.test", Timeout: 0, Retries: 0, ChunkSize: 100},
		chainID:     42161,
		blockNumber: 123456,
	}
}

func TestRouterChainID(t *testing.T) {
	router := NewRouter(newFake())
	out, err := router.Execute(context.Background(), Request{Action: "chain_id"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, ok := out.(*ChainIDResult)
	if !ok || result.ChainID != 42161 || result.RPCURL != "https://rpc.test" {
		t.Fatalf("unexpected result: %#v", out)
	}
}

func TestRouterBlockNumberAlias(t *testing.T) {
	router := NewRouter(newFake())
	out, err := router.Execute(context.Background(), Request{Action: "BlockNumber"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(*BlockNumberResult).BlockNumber != 123456 {
		t.Fatalf("unexpected result: %#v", out)
	}
}

func TestRouterTxBundleDerivesFromReceipt(t *testing.T) {
	fake := newFake()
	fake.tx = json.RawMessage(`{"hash":"` + testHash + `"}`)
	fake.receipt = json.RawMessage(`{"status":"0x1","logs":[{"logIndex":"0x0"}]}`)

	router := NewRouter(fake)
	out, err := router.Execute(context.Background(), Request{Action: "tx_bundle", TxHash: testHash})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bundle := out.(*TxBundle)
	if bundle.ChainID != 42161 || string(bundle.Status) != `"0x1"` || len(bundle.Logs) != 1 {
		t.Fatalf("unexpected bundle: %+v", bundle)
	}
}

func TestRouterTxBundleDegradesOnReceiptFailure(t *testing.T) {
	fake := newFake()
	fake.tx = json.RawMessage(`{"hash":"` + testHash + `"}`)
	fake.receiptErr = xerrors.New(xerrors.CodeTransportFailure, "连接超时")

	router := NewRouter(fake)
	out, err := router.Execute(context.Background(), Request{Action: "bundle", TxHash: testHash})
	if err != nil {
		t.Fatalf("receipt failure must not abort the bundle: %v", err)
	}
	bundle := out.(*TxBundle)
	if string(bundle.Tx) == "null" {
		t.Fatalf("tx envelope should survive")
	}
	if string(bundle.Status) != "null" || len(bundle.Logs) != 0 || bundle.ReceiptError == "" {
		t.Fatalf("expected degraded bundle, got %+v", bundle)
	}
}

func TestRouterTxBundleRejectsMalformedHash(t *testing.T) {
	router := NewRouter(newFake())
	_, err := router.Execute(context.Background(), Request{Action: "tx_bundle", TxHash: "0x123"})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestRouterScanLogsConcatenatesInChunkOrder(t *testing.T) {
	fake := newFake()
	fake.logsFn = func(filter Filter) ([]json.RawMessage, error) {
		// 每块返回一条带其下界的日志，验证拼接顺序。
		from, err := filter.FromBlock.Number()
		if err != nil {
			return nil, err
		}
		return []json.RawMessage{json.RawMessage(fmt.Sprintf(`{"from":%d}`, from))}, nil
	}

	router := NewRouter(fake)
	out, err := router.Execute(context.Background(), Request{
		Action:    "scan_logs",
		FromBlock: "0",
		ToBlock:   "349",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scan := out.(*ScanResult)
	if scan.Chunks != 4 || scan.LogCount != 4 {
		t.Fatalf("unexpected scan: %+v", scan)
	}
	if scan.FromBlock != 0 || scan.ToBlock != 349 {
		t.Fatalf("unexpected resolved range: %+v", scan)
	}
	want := []string{`{"from":0}`, `{"from":100}`, `{"from":200}`, `{"from":300}`}
	for i, log := range scan.Logs {
		if string(log) != want[i] {
			t.Fatalf("log %d = %s, want %s", i, log, want[i])
		}
	}
}

func TestRouterScanLogsNormalizesSwappedBounds(t *testing.T) {
	fake := newFake()
	router := NewRouter(fake)
	out, err := router.Execute(context.Background(), Request{
		Action:    "scan_logs",
		FromBlock: "100",
		ToBlock:   "50",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scan := out.(*ScanResult)
	if scan.FromBlock != 50 || scan.ToBlock != 100 {
		t.Fatalf("bounds not auto-swapped: %+v", scan)
	}
}

func TestRouterScanLogsRejectsSymbolicBounds(t *testing.T) {
	router := NewRouter(newFake())
	_, err := router.Execute(context.Background(), Request{Action: "scan", ToBlock: "100"})
	if xerrors.CodeOf(err) != xerrors.CodeUnresolvedRange {
		t.Fatalf("expected UNRESOLVED_RANGE, got %v", err)
	}
}

func TestRouterGetLogsAllowsTags(t *testing.T) {
	fake := newFake()
	fake.logsFn = func(Filter) ([]json.RawMessage, error) {
		return []json.RawMessage{json.RawMessage(`{"logIndex":"0x0"}`)}, nil
	}
	router := NewRouter(fake)
	out, err := router.Execute(context.Background(), Request{
		Action:  "get_logs",
		Address: "0x912CE59144191C1204E64559FE8253a0e49E6548",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := out.(*LogsResult)
	if result.Filter.FromBlock != TagLatest || result.Filter.ToBlock != TagLatest {
		t.Fatalf("missing bounds must default to latest: %+v", result.Filter)
	}
	if result.LogCount != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRouterUnknownAction(t *testing.T) {
	router := NewRouter(newFake())
	_, err := router.Execute(context.Background(), Request{Action: "transmogrify"})
	if xerrors.CodeOf(err) != xerrors.CodeUnknownAction {
		t.Fatalf("expected UNKNOWN_ACTION, got %v", err)
	}
	if got := err.Error(); !strings.Contains(got, "transmogrify") {
		t.Fatalf("error must name the action: %s", got)
	}
}
