// Package classify 定义 DeFi 交易意图分类的统一接口与数据结构。
package classify

import (
	"context"
	"log/slog"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

// SystemPrompt 约束推理后端只输出固定字段的 JSON 对象。
const SystemPrompt = `You are a precise DeFi transaction intent classifier.
Given a calldata snippet and key event logs, output ONLY valid JSON with exactly these fields:
{
  "action_type": "<verb in SCREAMING_SNAKE_CASE>",
  "protocol":    "<protocol name>",
  "token_in":    "<symbol or null>",
  "amount_in":   <float or null>,
  "token_out":   "<symbol or null>",
  "amount_out":  <float or null>,
  "confidence":  <0.0-1.0>,
  "reason":      "<one-sentence explanation>"
}
Rules:
- Prioritise protocol events (e.g. Aave Mint/Supply) over function selectors.
- If redeemDelegations is present in calldata, use DELEGATED_SUPPLY.
- Never include extra keys or prose outside the JSON object.`

// Label 是分类后端输出的结构化标签。代币与金额允许为 null，
// 因此用指针区分缺失与零值。
type Label struct {
	ActionType string   `json:"action_type"`
	Protocol   string   `json:"protocol"`
	TokenIn    *string  `json:"token_in"`
	AmountIn   *float64 `json:"amount_in"`
	TokenOut   *string  `json:"token_out"`
	AmountOut  *float64 `json:"amount_out"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
}

// Classifier 定义了调用推理后端的统一接口。
type Classifier interface {
	// Classify 把一段交易描述翻译成结构化标签。
	Classify(ctx context.Context, description string) (*Label, error)
	// Backend 返回后端的可读标识，用于日志与 /info。
	Backend() string
}

// Fallback 优先使用主后端，主后端出现可重试失败时切换到备用后端。
// 配置缺失、鉴权失败等确定性错误不触发切换，直接上抛。
type Fallback struct {
	primary   Classifier
	secondary Classifier
	logger    *slog.Logger
}

// NewFallback 组合主备后端。secondary 可以为 nil，此时退化为直连主后端。
func NewFallback(primary, secondary Classifier, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

// Backend 返回当前生效的主后端标识。
func (f *Fallback) Backend() string {
	return f.primary.Backend()
}

// Classify 实现 Classifier。
func (f *Fallback) Classify(ctx context.Context, description string) (*Label, error) {
	label, err := f.primary.Classify(ctx, description)
	if err == nil {
		return label, nil
	}
	if f.secondary == nil || !xerrors.RetryableError(err) {
		return nil, err
	}
	f.logger.Warn("主推理后端不可用，切换到备用后端",
		slog.String("primary", f.primary.Backend()),
		slog.String("secondary", f.secondary.Backend()),
		slog.String("error", err.Error()),
	)
	return f.secondary.Classify(ctx, description)
}
