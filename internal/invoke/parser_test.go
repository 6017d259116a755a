package invoke

import (
	"strings"
	"testing"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

const sampleHash = "0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"

func TestParseBareHashBecomesTxBundle(t *testing.T) {
	req, err := Parse("  " + sampleHash + "  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Action != "tx_bundle" || req.TxHash != sampleHash {
		t.Fatalf("got %+v", req)
	}
}

func TestParseKeywordShorthands(t *testing.T) {
	cases := map[string]string{
		"chain_id":     "chain_id",
		"ChainID":      "chain_id",
		"block_number": "block_number",
		"BlockNumber":  "block_number",
		"block":        "block_number",
	}
	for input, action := range cases {
		req, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q): %v", input, err)
		}
		if req.Action != action {
			t.Fatalf("Parse(%q).Action = %q, want %q", input, req.Action, action)
		}
	}
}

func TestParsePositionalBundle(t *testing.T) {
	req, err := Parse("bundle " + sampleHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Action != "tx_bundle" || req.TxHash != sampleHash {
		t.Fatalf("got %+v", req)
	}
}

func TestParsePositionalBundleBadHashFallsThrough(t *testing.T) {
	_, err := Parse("tx_bundle 0xdeadbeef")
	if xerrors.CodeOf(err) != xerrors.CodeUnrecognized {
		t.Fatalf("expected UNRECOGNIZED_INPUT, got %v", err)
	}
}

func TestParseScanLogsPositional(t *testing.T) {
	req, err := Parse("scan_logs 100 350 0xabc 0x1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Action != "scan_logs" || req.FromBlock != "100" || req.ToBlock != "350" {
		t.Fatalf("got %+v", req)
	}
	if req.Address != "0xabc" {
		t.Fatalf("address = %v", req.Address)
	}
	if len(req.Topics) != 1 || req.Topics[0] != "0x1234" {
		t.Fatalf("topics = %v", req.Topics)
	}
}

func TestParseScanLogsOmitsUnprefixedTrailers(t *testing.T) {
	req, err := Parse("scan_logs 100 350 somewhere topicless")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Address != nil || req.Topics != nil {
		t.Fatalf("unprefixed trailers must be dropped, got %+v", req)
	}
}

func TestParseGetLogsMissingTailTokens(t *testing.T) {
	req, err := Parse("get_logs latest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Action != "get_logs" || req.FromBlock != "latest" || req.ToBlock != nil {
		t.Fatalf("got %+v", req)
	}
}

func TestParseJSONObject(t *testing.T) {
	req, err := Parse(`{"action":"scan_logs","from_block":7,"to_block":"0x2329","address":"0xabc"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Action != "scan_logs" || req.Address != "0xabc" {
		t.Fatalf("got %+v", req)
	}
	if req.FromBlock != float64(7) || req.ToBlock != "0x2329" {
		t.Fatalf("block bounds: %v %v", req.FromBlock, req.ToBlock)
	}
}

func TestParseJSONArrayRejected(t *testing.T) {
	_, err := Parse(`{"action":"x"} `)
	if err != nil {
		t.Fatalf("trailing space should be trimmed: %v", err)
	}
	_, err = Parse(`{invalid}`)
	if xerrors.CodeOf(err) != xerrors.CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestParseUnrecognizedNamesInput(t *testing.T) {
	_, err := Parse("make me a sandwich")
	if xerrors.CodeOf(err) != xerrors.CodeUnrecognized {
		t.Fatalf("expected UNRECOGNIZED_INPUT, got %v", err)
	}
	if !strings.Contains(err.Error(), "sandwich") {
		t.Fatalf("error should echo the raw input: %v", err)
	}
}

func TestParseEmptyInput(t *testing.T) {
	_, err := Parse("   ")
	if xerrors.CodeOf(err) != xerrors.CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT for empty input, got %v", err)
	}
}
