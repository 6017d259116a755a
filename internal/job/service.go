package job

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"

	"github.com/lattibeaudiere/eigenclaw/internal/classify"
	"github.com/lattibeaudiere/eigenclaw/pkg/logger"
)

// Service 负责任务的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造任务服务。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// Submit 创建一个新的批量标注任务并推送到队列。
func (s *Service) Submit(ctx context.Context, records []classify.Record, field string) (*Job, error) {
	if len(records) == 0 {
		return nil, xerrors.New(CodeJobValidation, "待标注记录不能为空")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeNotConfigured, "任务服务未初始化")
	}

	jobID := uuid.NewString()
	created := &Job{
		ID:         jobID,
		Field:      field,
		Records:    cloneRecords(records),
		Status:     StatusPending,
		Attempts:   0,
		MaxRetries: s.maxRetries,
		Total:      len(records),
	}
	if err := s.store.Create(ctx, created); err != nil {
		return nil, err
	}
	if err := s.producer.Publish(ctx, jobID); err != nil {
		logger.L().Error("任务入队失败", slog.Any("error", err), slog.String("job_id", jobID))
		wrapped := xerrors.Wrap(CodeJobPublish, err, "发布任务到队列失败")
		_ = s.store.MarkFailed(ctx, jobID, CodeJobPublish, wrapped.Error())
		return nil, wrapped
	}
	logger.Audit().Info("任务入队成功",
		slog.String("job_id", jobID),
		slog.Int("records", len(records)),
		slog.Int("max_retries", created.MaxRetries),
	)
	return created, nil
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeNotConfigured, "任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回最近的任务。
func (s *Service) List(ctx context.Context, limit int) ([]*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeNotConfigured, "任务存储未初始化")
	}
	return s.store.List(ctx, limit)
}

// IsNotFound 判断错误是否表示任务不存在。
func IsNotFound(err error) bool {
	return stdErrors.Is(err, ErrJobNotFound)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilCompleted 在指定超时时间内轮询任务状态。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == StatusSucceeded || current.Status == StatusFailed {
			return current, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
