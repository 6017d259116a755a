package chain

import (
	"fmt"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

// Chunk 是扫描计划中的一个闭区间子范围。
type Chunk struct {
	From uint64
	To   uint64
}

// BuildChunkPlan 把 [from, to] 切成宽度不超过 size 的连续无缝子范围。
// 两端必须是具体高度；颠倒的边界自动交换而不是报错。相邻分块满足
// chunk[i].To+1 == chunk[i+1].From，最后一块的上界恰好等于 to。
func BuildChunkPlan(from, to BlockTag, size uint64) ([]Chunk, error) {
	if size == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "分块大小必须为正数")
	}
	if from.IsSymbolic() || to.IsSymbolic() {
		return nil, xerrors.New(xerrors.CodeUnresolvedRange,
			fmt.Sprintf("分块扫描需要具体的区块高度（from=%s, to=%s），开放范围请走 get_logs", from, to))
	}

	lower, err := from.Number()
	if err != nil {
		return nil, err
	}
	upper, err := to.Number()
	if err != nil {
		return nil, err
	}
	if upper < lower {
		lower, upper = upper, lower
	}

	plan := make([]Chunk, 0, (upper-lower)/size+1)
	for start := lower; ; start += size {
		end := start + size - 1
		if end > upper || end < start {
			end = upper
		}
		plan = append(plan, Chunk{From: start, To: end})
		if end == upper {
			break
		}
	}
	return plan, nil
}
