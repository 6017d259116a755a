// Command examples demonstrates the eigenclaw Go SDK against a local daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/lattibeaudiere/eigenclaw/sdk/go/eigenclaw"
)

func main() {
	baseURL := os.Getenv("EIGENCLAW_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}

	client, err := eigenclaw.NewClient(baseURL, nil)
	if err != nil {
		log.Fatalf("构造客户端失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := client.Health(ctx); err != nil {
		log.Fatalf("服务不可用: %v", err)
	}
	info, err := client.Info(ctx)
	if err != nil {
		log.Fatalf("查询服务信息失败: %v", err)
	}
	fmt.Printf("backend=%s network=%s\n", info.Backend, info.Network)

	label, err := client.LabelOne(ctx, "supply 1000 USDC to Aave v3 on Arbitrum")
	if err != nil {
		log.Fatalf("同步标注失败: %v", err)
	}
	fmt.Printf("action=%s protocol=%s confidence=%.2f\n",
		label.ActionType, label.Protocol, label.Confidence)

	created, err := client.SubmitJob(ctx, []eigenclaw.Record{
		{"tx_hash": "0x01", "description": "swap 2 WETH for ARB on Camelot"},
		{"tx_hash": "0x02", "description": "repay 500 GHO on Aave"},
	}, "")
	if err != nil {
		log.Fatalf("提交批量任务失败: %v", err)
	}

	done, err := client.WaitForJob(ctx, created.ID, 2*time.Second)
	if err != nil {
		log.Fatalf("等待任务失败: %v", err)
	}
	fmt.Printf("job %s finished: %s (%d/%d)\n", done.ID, done.Status, done.Done, done.Total)
	for _, record := range done.Results {
		fmt.Printf("  %v -> %v\n", record["tx_hash"], record["label"])
	}
}
