package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"

	"github.com/lattibeaudiere/eigenclaw/internal/api"
	"github.com/lattibeaudiere/eigenclaw/internal/classify"
	"github.com/lattibeaudiere/eigenclaw/internal/classify/openai"
	"github.com/lattibeaudiere/eigenclaw/internal/config"
	"github.com/lattibeaudiere/eigenclaw/internal/job"
	"github.com/lattibeaudiere/eigenclaw/internal/retry"
	"github.com/lattibeaudiere/eigenclaw/internal/storage/mysql"
	"github.com/lattibeaudiere/eigenclaw/pkg/logger"
)

// main 是 eigenclaw 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("eigenclawd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("EIGENCLAW_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "eigenclaw.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()
	mainLog := logger.Named("eigenclawd")

	// 推理后端没配置时服务仍然启动，标注接口返回 503，
	// /health 与历史查询保持可用。
	classifier, err := openai.Build(cfg.Classifier, logger.Named("classify"))
	if err != nil {
		if xerrors.CodeOf(err) != xerrors.CodeNotConfigured {
			return err
		}
		mainLog.Warn("未配置推理后端，标注接口将不可用", "error", err.Error())
		classifier = nil
	}

	history, err := buildLabelHistory(ctx, cfg.Storage.LabelStore)
	if err != nil {
		return err
	}
	defer history.Close()

	jobStore := job.NewMemoryStore()
	defer jobStore.Close()

	jobQueue, err := buildJobQueue(cfg.JobQueue)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			mainLog.Warn("关闭任务队列失败", "error", err.Error())
		}
	}()

	jobService := job.NewService(jobStore, jobQueue, cfg.Classifier.Retries)

	serverOpts := []api.Option{
		api.WithNetwork(cfg.Server.Network),
		api.WithJobService(jobService),
		api.WithLabelHistory(history),
		api.WithServerLogger(logger.Named("api")),
	}

	if classifier != nil {
		processor := job.NewProcessor(classifier, jobStore, jobQueue, jobQueue,
			job.WithWorkerCount(cfg.JobQueue.Worker),
			job.WithConcurrency(cfg.Classifier.Concurrency),
			job.WithRetryExecutor(retry.New(cfg.Classifier.Retries)),
			job.WithLabelHistory(history),
			job.WithProcessorLogger(logger.Named("job")),
		)
		processorCtx, processorCancel := context.WithCancel(ctx)
		defer processorCancel()
		go func() {
			if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
				mainLog.Error("任务处理器异常退出", "error", err.Error())
			}
		}()

		serverOpts = append(serverOpts, api.WithDispatcher(classify.NewDispatcher(classifier,
			classify.WithWorkers(cfg.Classifier.Concurrency),
			classify.WithRetryExecutor(retry.New(cfg.Classifier.Retries)),
			classify.WithDispatcherLogger(logger.Named("classify")),
		)))
		mainLog.Info("推理后端就绪", "backend", classifier.Backend())
	}

	server := api.NewServer(cfg.Server.Address, classifier, serverOpts...)
	mainLog.Info("HTTP 服务启动",
		"address", cfg.Server.Address,
		"network", cfg.Server.Network,
		"queue_driver", cfg.JobQueue.Driver,
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildLabelHistory 按驱动名构造标注历史仓库，默认落在本地文件。
func buildLabelHistory(ctx context.Context, cfg config.LabelStoreConfig) (mysql.LabelRepository, error) {
	switch cfg.Driver {
	case "", "memory":
		return mysql.NewMemoryLabelRepository("data")
	case "mysql":
		return mysql.NewSQLLabelRepository(ctx, mysql.Config{DSN: cfg.DSN})
	default:
		return nil, mysql.ErrUnsupportedDriver
	}
}

// buildJobQueue 按驱动名构造任务队列。
func buildJobQueue(cfg config.JobQueueConfig) (job.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return job.NewMemoryQueue(1024), nil
	case "redis":
		return job.NewRedisQueue(job.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		return job.NewRabbitMQQueue(job.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
	default:
		return nil, xerrors.New(xerrors.CodeNotConfigured, "未知的队列驱动: "+cfg.Driver)
	}
}
