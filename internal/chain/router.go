package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

// Router 把规范化动作请求映射为最小的一组远程调用并组装响应。
// 所有调用严格串行：聚合结果的顺序取决于发出顺序，远端限流也按
// 连接计算，因此这里不做并发。
type Router struct {
	rpc    RPC
	logger *slog.Logger
}

// RouterOption 定义可选配置。
type RouterOption func(*Router)

// WithRouterLogger 指定日志输出。
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter 构造路由器。
func NewRouter(rpc RPC, opts ...RouterOption) *Router {
	r := &Router{rpc: rpc}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Execute 执行请求对应的动作。未知动作返回 UNKNOWN_ACTION 错误。
func (r *Router) Execute(ctx context.Context, req Request) (any, error) {
	if r == nil || r.rpc == nil {
		return nil, xerrors.New(xerrors.CodeNotConfigured, "路由器未初始化")
	}

	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action == "" {
		action = "tx_bundle"
	}

	if r.logger != nil {
		r.logger.Debug("执行链上动作", slog.String("action", action))
	}

	switch action {
	case "chain_id", "chainid":
		id, err := r.rpc.ChainID(ctx)
		if err != nil {
			return nil, err
		}
		return &ChainIDResult{RPCURL: r.rpc.Endpoint().URL, ChainID: id}, nil
	case "block_number", "blocknumber", "block":
		height, err := r.rpc.BlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		return &BlockNumberResult{RPCURL: r.rpc.Endpoint().URL, BlockNumber: height}, nil
	case "tx_bundle", "bundle":
		return r.txBundle(ctx, req.TxHash)
	case "get_logs", "logs":
		return r.getLogs(ctx, req)
	case "scan_logs", "scan":
		return r.scanLogs(ctx, req)
	default:
		return nil, xerrors.New(xerrors.CodeUnknownAction,
			fmt.Sprintf("不支持的动作: %s", action))
	}
}

// txBundle 通过三次独立调用组装交易视图。三次调用之间没有事务性
// 保证，这是已接受的非原子来源。回执查询重试耗尽时降级为部分结果，
// 而不是整体失败。
func (r *Router) txBundle(ctx context.Context, txHash string) (*TxBundle, error) {
	if !IsTxHash(txHash) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("tx_bundle 需要 0x 开头的 32 字节交易哈希，收到: %q", txHash))
	}

	tx, err := r.rpc.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, err
	}
	chainID, err := r.rpc.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	bundle := &TxBundle{
		RPCURL:  r.rpc.Endpoint().URL,
		TxHash:  txHash,
		ChainID: chainID,
		Tx:      tx,
		Receipt: json.RawMessage("null"),
		Status:  json.RawMessage("null"),
		Logs:    []json.RawMessage{},
	}

	receipt, receiptErr := r.rpc.TransactionReceipt(ctx, txHash)
	if receiptErr != nil {
		bundle.ReceiptError = receiptErr.Error()
		if r.logger != nil {
			r.logger.Warn("回执查询失败，返回降级的交易视图",
				slog.String("tx_hash", txHash),
				slog.String("error", receiptErr.Error()),
			)
		}
		return bundle, nil
	}

	bundle.Receipt = receipt
	if status, logs, ok := deriveFromReceipt(receipt); ok {
		bundle.Status = status
		bundle.Logs = logs
	}
	return bundle, nil
}

// deriveFromReceipt 从回执原文中提取 status 与 logs。回执为 null 时
// 返回 ok=false，调用方保留 status=null、logs=[] 的缺省值。
func deriveFromReceipt(receipt json.RawMessage) (json.RawMessage, []json.RawMessage, bool) {
	var decoded struct {
		Status json.RawMessage   `json:"status"`
		Logs   []json.RawMessage `json:"logs"`
	}
	if err := json.Unmarshal(receipt, &decoded); err != nil || string(receipt) == "null" {
		return nil, nil, false
	}
	status := decoded.Status
	if len(status) == 0 {
		status = json.RawMessage("null")
	}
	logs := decoded.Logs
	if logs == nil {
		logs = []json.RawMessage{}
	}
	return status, logs, true
}

// getLogs 走非分块路径，允许符号标签作为区块边界。
func (r *Router) getLogs(ctx context.Context, req Request) (*LogsResult, error) {
	filter := Filter{
		Address:   req.Address,
		Topics:    req.Topics,
		FromBlock: NormalizeBlockTag(req.FromBlock),
		ToBlock:   NormalizeBlockTag(req.ToBlock),
	}

	logs, err := r.rpc.Logs(ctx, filter)
	if err != nil {
		return nil, err
	}
	chainID, err := r.rpc.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	return &LogsResult{
		RPCURL:   r.rpc.Endpoint().URL,
		ChainID:  chainID,
		Filter:   filter,
		LogCount: len(logs),
		Logs:     logs,
	}, nil
}

// scanLogs 先生成分块计划，再按块顺序串行查询并拼接结果。
func (r *Router) scanLogs(ctx context.Context, req Request) (*ScanResult, error) {
	endpoint := r.rpc.Endpoint()
	from := NormalizeBlockTag(req.FromBlock)
	to := NormalizeBlockTag(req.ToBlock)

	plan, err := BuildChunkPlan(from, to, endpoint.ChunkSize)
	if err != nil {
		return nil, err
	}

	allLogs := make([]json.RawMessage, 0)
	for _, chunk := range plan {
		filter := Filter{
			Address:   req.Address,
			Topics:    req.Topics,
			FromBlock: NormalizeBlockTag(chunk.From),
			ToBlock:   NormalizeBlockTag(chunk.To),
		}
		logs, err := r.rpc.Logs(ctx, filter)
		if err != nil {
			return nil, err
		}
		allLogs = append(allLogs, logs...)
	}

	chainID, err := r.rpc.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	return &ScanResult{
		RPCURL:    endpoint.URL,
		ChainID:   chainID,
		Address:   req.Address,
		Topics:    req.Topics,
		FromBlock: plan[0].From,
		ToBlock:   plan[len(plan)-1].To,
		ChunkSize: endpoint.ChunkSize,
		Chunks:    len(plan),
		LogCount:  len(allLogs),
		Logs:      allLogs,
	}, nil
}
