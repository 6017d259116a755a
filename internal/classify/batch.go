package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
	"github.com/lattibeaudiere/eigenclaw/internal/retry"
)

// DefaultDescriptionField 是记录中默认携带交易描述的键。
const DefaultDescriptionField = "description"

// Record 是一条待标注的交易记录，标注结果写入其 label 键。
type Record map[string]any

// Progress 在每条记录完成时回调：index 是该记录在输入中的位置，
// status 是简短结果（ok / failed / no_description）。回调串行执行。
type Progress func(index, total int, status string)

// Dispatcher 用固定数量的工作协程并发标注一批交易。
// 单条记录的失败不会中断整批：失败以错误标记嵌入该记录，
// 输出数量恒等于输入数量，且保持输入顺序。
type Dispatcher struct {
	classifier Classifier
	workers    int
	exec       *retry.Executor
	progress   Progress
	logger     *slog.Logger
}

// DispatcherOption 定义可选配置。
type DispatcherOption func(*Dispatcher)

// WithWorkers 设置工作协程数量，默认 2。
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithRetryExecutor 替换单条记录使用的重试执行器。
func WithRetryExecutor(exec *retry.Executor) DispatcherOption {
	return func(d *Dispatcher) {
		if exec != nil {
			d.exec = exec
		}
	}
}

// WithProgress 注册进度回调。
func WithProgress(fn Progress) DispatcherOption {
	return func(d *Dispatcher) {
		d.progress = fn
	}
}

// WithDispatcherLogger 指定日志输出。
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher 构造批量标注器。
func NewDispatcher(classifier Classifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		classifier: classifier,
		workers:    2,
		exec:       retry.New(2),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Run 标注 records 中的每条记录并按输入顺序返回。field 为空时
// 使用默认的 description 键。记录本身被原地修改后放回结果切片。
func (d *Dispatcher) Run(ctx context.Context, records []Record, field string) []Record {
	if field == "" {
		field = DefaultDescriptionField
	}
	out := make([]Record, len(records))
	if len(records) == 0 {
		return out
	}

	workers := d.workers
	if workers > len(records) {
		workers = len(records)
	}

	indexes := make(chan int)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				var status string
				out[i], status = d.labelOne(ctx, records[i], field)
				if d.progress != nil {
					mu.Lock()
					d.progress(i, len(records), status)
					mu.Unlock()
				}
			}
		}()
	}
	for i := range records {
		indexes <- i
	}
	close(indexes)
	wg.Wait()
	return out
}

// labelOne 标注单条记录并返回简短状态。描述缺失直接打缺失标记，
// 不浪费推理调用。
func (d *Dispatcher) labelOne(ctx context.Context, record Record, field string) (Record, string) {
	if record == nil {
		record = Record{}
	}
	description := describe(record, field)
	if description == "" {
		record["label"] = map[string]any{"error": "no_description_found"}
		return record, "no_description"
	}

	var label *Label
	err := d.exec.Do(ctx, func(ctx context.Context) error {
		var classifyErr error
		label, classifyErr = d.classifier.Classify(ctx, description)
		return classifyErr
	})
	if err != nil {
		record["label"] = errorMarker(err)
		d.logger.Warn("标注失败", slog.String("error", err.Error()))
		return record, "failed"
	}
	record["label"] = label
	return record, "ok"
}

// describe 提取记录的文本描述：优先取指定字段，
// 缺失时拼接 calldata 与事件日志。
func describe(record Record, field string) string {
	if v, ok := record[field].(string); ok && strings.TrimSpace(v) != "" {
		return v
	}
	calldata, _ := record["calldata"].(string)
	var logs string
	if v, ok := record["logs"]; ok {
		logs = fmt.Sprint(v)
	}
	combined := strings.TrimSpace(calldata + " " + logs)
	return combined
}

// errorMarker 把失败转成嵌入记录的标记。非 JSON 响应附带原文，
// 便于事后排查后端到底回了什么。
func errorMarker(err error) map[string]any {
	marker := map[string]any{"error": err.Error()}
	if e, ok := xerrors.From(err); ok && e.Code() == xerrors.CodeNonJSONResponse {
		if raw, ok := e.Metadata()["raw"]; ok {
			marker["raw"] = raw
		}
	}
	return marker
}
