package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"

	"github.com/lattibeaudiere/eigenclaw/internal/chain"
	"github.com/lattibeaudiere/eigenclaw/internal/config"
	"github.com/lattibeaudiere/eigenclaw/internal/invoke"
)

const usageHint = `输入形式: 交易哈希 | chain_id | block_number | ` +
	`tx_bundle <hash> | scan_logs <from> <to> [address] [topic0] | JSON 对象`

// main 把单个命令行参数翻译成链查询并将结果 JSON 打到标准输出。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	raw := strings.Join(os.Args[1:], " ")
	if err := run(ctx, raw); err != nil {
		fail(err)
	}
}

func run(ctx context.Context, raw string) error {
	req, err := invoke.Parse(raw)
	if err != nil {
		return err
	}

	cfg := config.FromEnv()
	endpoint := chain.Endpoint{
		URL:       cfg.RPC.URL,
		Timeout:   cfg.RPC.Timeout(),
		Retries:   cfg.RPC.Retries,
		ChunkSize: cfg.RPC.LogChunkSize,
	}
	if req.RPCURL != "" {
		endpoint.URL = req.RPCURL
	}

	client, err := chain.Dial(ctx, endpoint)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := chain.NewRouter(client).Execute(ctx, req)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "序列化结果失败")
	}
	fmt.Println(string(encoded))
	return nil
}

// fail 把错误按 JSON 打到标准输出后以非零码退出，调用方（智能体）
// 只解析标准输出，所以错误也走同一条通道。
func fail(err error) {
	payload := map[string]string{
		"error": err.Error(),
		"hint":  usageHint,
	}
	encoded, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(encoded))
	os.Exit(1)
}
