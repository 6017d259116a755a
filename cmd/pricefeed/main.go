package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lattibeaudiere/eigenclaw/internal/chain"
	"github.com/lattibeaudiere/eigenclaw/internal/config"
	"github.com/lattibeaudiere/eigenclaw/internal/pricefeed"
)

const usage = `用法:
  pricefeed chainlink <PAIR> [network]     链上聚合器读价，如 ETH/USD arbitrum
  pricefeed coingecko <symbol> [symbol...] 行情 API 读价，如 ETH USDC`

// main 提供两条独立的价格查询通道：链上 Chainlink 聚合器与
// CoinGecko 行情 API。结果统一以 JSON 打到标准输出。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	var (
		result any
		err    error
	)
	switch os.Args[1] {
	case "chainlink":
		network := "arbitrum"
		if len(os.Args) > 3 {
			network = os.Args[3]
		}
		result, err = fetchChainlink(ctx, os.Args[2], network)
	case "coingecko":
		gecko := pricefeed.NewCoinGecko("", "")
		result, err = gecko.Fetch(ctx, pricefeed.PriceRequest{Symbols: os.Args[2:]})
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	if err != nil {
		encoded, _ := json.Marshal(map[string]string{"error": err.Error()})
		fmt.Println(string(encoded))
		os.Exit(1)
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(encoded))
}

func fetchChainlink(ctx context.Context, pair, network string) (*pricefeed.Quote, error) {
	chainsFile := config.FromEnv().RPC.ChainsFile
	if chainsFile == "" {
		chainsFile = filepath.Join("configs", "chains.yaml")
	}
	networks, err := chain.LoadNetworkDefinitions(chainsFile)
	if err != nil {
		return nil, err
	}
	return pricefeed.NewChainlink(networks, nil).Fetch(ctx, pair, network)
}
