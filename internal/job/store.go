package job

import (
	"context"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"

	"github.com/lattibeaudiere/eigenclaw/internal/classify"
)

// Store 抽象任务状态的读写。
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Claim 把待处理任务置为运行中并递增尝试次数。
	Claim(ctx context.Context, id string) (*Job, error)
	SetProgress(ctx context.Context, id string, done, total int) error
	MarkSucceeded(ctx context.Context, id string, results []classify.Record) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string) error
	// List 返回最近更新的任务，按更新时间倒序排列。
	List(ctx context.Context, limit int) ([]*Job, error)
	Close() error
}
