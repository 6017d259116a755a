package job

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"

	"github.com/lattibeaudiere/eigenclaw/internal/classify"
	"github.com/lattibeaudiere/eigenclaw/internal/retry"
	"github.com/lattibeaudiere/eigenclaw/internal/storage/mysql"
	"github.com/lattibeaudiere/eigenclaw/pkg/logger"
)

// Processor 负责从队列消费任务并交给批量标注器执行。
type Processor struct {
	classifier  classify.Classifier
	store       Store
	consumer    Consumer
	producer    Producer
	history     mysql.LabelRepository
	workerCount int
	concurrency int
	exec        *retry.Executor
	logger      *slog.Logger
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithConcurrency 设置单个任务内的标注并发。
func WithConcurrency(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithRetryExecutor 替换单条记录使用的重试执行器。
func WithRetryExecutor(exec *retry.Executor) ProcessorOption {
	return func(p *Processor) {
		if exec != nil {
			p.exec = exec
		}
	}
}

// WithLabelHistory 配置标注历史仓库，成功的标注会逐条落库。
func WithLabelHistory(history mysql.LabelRepository) ProcessorOption {
	return func(p *Processor) {
		p.history = history
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(classifier classify.Classifier, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		classifier:  classifier,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		concurrency: 2,
		exec:        retry.New(2),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动任务处理循环，阻塞直到 ctx 取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeNotConfigured, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.classifier == nil {
		return xerrors.New(xerrors.CodeNotConfigured, "处理器未初始化")
	}
	claimed, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobCompleted) || stdErrors.Is(err, ErrJobExhausted) {
			p.logDebug("跳过任务", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取任务失败", slog.Any("error", err), slog.String("job_id", jobID))
		return err
	}

	// 进度回调串行执行，计数无需额外加锁。
	done := 0
	dispatcher := classify.NewDispatcher(p.classifier,
		classify.WithWorkers(p.concurrency),
		classify.WithRetryExecutor(p.exec),
		classify.WithDispatcherLogger(p.jobLogger()),
		classify.WithProgress(func(_, total int, _ string) {
			done++
			_ = p.store.SetProgress(ctx, claimed.ID, done, total)
		}),
	)
	results := dispatcher.Run(ctx, claimed.Records, claimed.Field)

	// 批量标注本身不失败，单条失败以标记形式嵌入结果。
	// 整批中断只剩一种情况：上下文被取消。
	if ctx.Err() != nil {
		return p.handleInterrupted(ctx, claimed)
	}

	if err := p.store.MarkSucceeded(ctx, claimed.ID, results); err != nil {
		logger.L().Error("标记任务成功状态失败", slog.Any("error", err), slog.String("job_id", claimed.ID))
		return err
	}
	p.saveHistory(ctx, results)
	logger.Audit().Info("批量标注完成",
		slog.String("job_id", claimed.ID),
		slog.Int("records", len(results)),
		slog.Int("attempts", claimed.Attempts),
	)
	return nil
}

// handleInterrupted 在进程关停打断任务时决定重投还是终结。
func (p *Processor) handleInterrupted(ctx context.Context, claimed *Job) error {
	cause := xerrors.Wrap(CodeJobProcessing, ctx.Err(), "任务被中断")
	terminal := claimed.Attempts >= claimed.MaxRetries

	// 回写用不受取消影响的上下文，尽力留下状态。
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if storeErr := p.store.MarkFailed(detached, claimed.ID, CodeJobProcessing, cause.Error()); storeErr != nil {
		logger.L().Error("标记任务失败状态出错", slog.Any("error", storeErr), slog.String("job_id", claimed.ID))
		return storeErr
	}
	logger.Audit().Warn("任务被中断",
		slog.String("job_id", claimed.ID),
		slog.Bool("terminal", terminal),
		slog.Int("attempts", claimed.Attempts),
		slog.Int("max_retries", claimed.MaxRetries),
	)
	if !terminal && p.producer != nil {
		if pubErr := p.producer.Publish(detached, claimed.ID); pubErr != nil {
			return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("任务 %s 重投失败", claimed.ID))
		}
		p.logDebug("任务已重新排队", slog.String("job_id", claimed.ID), slog.Int("attempts", claimed.Attempts))
	}
	return cause
}

// saveHistory 把成功标注的记录逐条写入历史仓库。落库失败不影响
// 任务结果，只记日志。
func (p *Processor) saveHistory(ctx context.Context, results []classify.Record) {
	if p.history == nil {
		return
	}
	now := time.Now().Unix()
	for _, record := range results {
		label, ok := record["label"].(*classify.Label)
		if !ok {
			continue
		}
		encoded, err := json.Marshal(label)
		if err != nil {
			continue
		}
		txHash, _ := record["tx_hash"].(string)
		description, _ := record["description"].(string)
		entry := &mysql.LabelRecord{
			TxHash:      txHash,
			Description: description,
			ActionType:  label.ActionType,
			Protocol:    label.Protocol,
			Label:       string(encoded),
			Backend:     p.classifier.Backend(),
			CreatedAt:   now,
		}
		if err := p.history.Save(ctx, entry); err != nil {
			logger.L().Error("标注历史落库失败", slog.Any("error", err), slog.String("tx_hash", txHash))
		}
	}
}

func (p *Processor) jobLogger() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return logger.L()
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}
