package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lattibeaudiere/eigenclaw/internal/classify"
	"github.com/lattibeaudiere/eigenclaw/internal/classify/openai"
	"github.com/lattibeaudiere/eigenclaw/internal/config"
	"github.com/lattibeaudiere/eigenclaw/internal/retry"
	"github.com/lattibeaudiere/eigenclaw/pkg/logger"
)

// testnetBaseURL 是 EigenAI 的 Sepolia 测试网端点。
const testnetBaseURL = "https://eigenai-sepolia.eigencloud.xyz/v1"

// main 批量标注一个 JSON 文件中的交易描述。单条失败以错误标记
// 写回结果，不影响其余记录，整个进程始终以 0 退出。
func main() {
	input := flag.String("input", "txs.json", "输入文件，内容为 JSON 记录数组")
	output := flag.String("output", "labeled_txs.json", "输出文件")
	field := flag.String("field", classify.DefaultDescriptionField, "描述字段名")
	concurrency := flag.Int("concurrency", 2, "并发标注数")
	testnet := flag.Bool("testnet", false, "使用 EigenAI 测试网端点")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *input, *output, *field, *concurrency, *testnet); err != nil {
		log.Fatalf("labeltxs 运行失败: %v", err)
	}
}

func run(ctx context.Context, input, output, field string, concurrency int, testnet bool) error {
	cfg := config.FromEnv()
	if testnet {
		cfg.Classifier.EigenAI.BaseURL = testnetBaseURL
	}

	classifier, err := openai.Build(cfg.Classifier, logger.Named("classify"))
	if err != nil {
		return err
	}

	records, err := readRecords(input)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("输入文件 %s 中没有记录", input)
	}

	clilog := logger.Named("labeltxs")
	clilog.Info("开始批量标注",
		"backend", classifier.Backend(),
		"records", len(records),
		"concurrency", concurrency,
	)

	done, failed := 0, 0
	dispatcher := classify.NewDispatcher(classifier,
		classify.WithWorkers(concurrency),
		classify.WithRetryExecutor(retry.New(cfg.Classifier.Retries)),
		classify.WithProgress(func(index, total int, status string) {
			done++
			if status != "ok" {
				failed++
			}
			fmt.Fprintf(os.Stderr, "\r已标注 %d/%d（第 %d 条: %s）", done, total, index+1, status)
		}),
	)
	results := dispatcher.Run(ctx, records, field)
	fmt.Fprintln(os.Stderr)

	if err := writeRecords(output, results); err != nil {
		return err
	}
	clilog.Info("标注完成", "output", output,
		"ok", len(results)-failed, "failed", failed)
	return nil
}

func readRecords(path string) ([]classify.Record, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取输入文件失败: %w", err)
	}
	var records []classify.Record
	if err := json.Unmarshal(content, &records); err != nil {
		return nil, fmt.Errorf("输入必须是 JSON 记录数组: %w", err)
	}
	return records, nil
}

func writeRecords(path string, records []classify.Record) error {
	encoded, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化结果失败: %w", err)
	}
	if err := os.WriteFile(path, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("写入输出文件失败: %w", err)
	}
	return nil
}
