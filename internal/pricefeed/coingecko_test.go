package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

func TestCoinGeckoResolvesSymbols(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("ids")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ethereum":{"usd":4500.5},"usd-coin":{"usd":1.0}}`))
	}))
	defer server.Close()

	cg := NewCoinGecko(server.URL, "")
	report, err := cg.Fetch(context.Background(), PriceRequest{
		Symbols: []string{"eth", "USDC", "NOPE"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "ethereum,usd-coin" {
		t.Fatalf("ids query = %q", gotQuery)
	}
	if report.Prices["ETH"]["usd"] != 4500.5 {
		t.Fatalf("prices = %v", report.Prices)
	}
	if len(report.MissingSymbols) != 1 || report.MissingSymbols[0] != "NOPE" {
		t.Fatalf("missing = %v", report.MissingSymbols)
	}
	if report.VsCurrency != "usd" || report.Source != "coingecko" {
		t.Fatalf("report = %+v", report)
	}
}

func TestCoinGeckoExplicitIDsSkipSymbolMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"gho":{"usd":0.998}}`))
	}))
	defer server.Close()

	cg := NewCoinGecko(server.URL, "")
	report, err := cg.Fetch(context.Background(), PriceRequest{
		Symbols: []string{"ETH"},
		IDs:     []string{"GHO"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 显式 id 优先，键保留 id 本身。
	if _, ok := report.Prices["gho"]; !ok {
		t.Fatalf("prices = %v", report.Prices)
	}
	if len(report.ResolvedIDs) != 1 || report.ResolvedIDs[0] != "gho" {
		t.Fatalf("resolved = %v", report.ResolvedIDs)
	}
}

func TestCoinGeckoFallsBackToDemoHeader(t *testing.T) {
	var headersSeen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Header.Get("x-cg-pro-api-key") != "":
			headersSeen = append(headersSeen, "pro")
			http.Error(w, "pro plan required", http.StatusBadRequest)
		case r.Header.Get("x-cg-demo-api-key") != "":
			headersSeen = append(headersSeen, "demo")
			_, _ = w.Write([]byte(`{"ethereum":{"usd":4500.0}}`))
		default:
			headersSeen = append(headersSeen, "none")
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer server.Close()

	cg := NewCoinGecko(server.URL, "some-key")
	report, err := cg.Fetch(context.Background(), PriceRequest{Symbols: []string{"ETH"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(headersSeen) != 2 || headersSeen[0] != "pro" || headersSeen[1] != "demo" {
		t.Fatalf("auth attempts = %v", headersSeen)
	}
	if report.Prices["ETH"]["usd"] != 4500.0 {
		t.Fatalf("prices = %v", report.Prices)
	}
}

func TestCoinGeckoNoResolvableTokens(t *testing.T) {
	cg := NewCoinGecko("http://unused.invalid", "")
	_, err := cg.Fetch(context.Background(), PriceRequest{Symbols: []string{"NOPE"}})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}
