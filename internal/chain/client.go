package chain

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
	"github.com/lattibeaudiere/eigenclaw/internal/retry"
)

var txHashRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// IsTxHash 判断字符串是否是 32 字节交易哈希的十六进制形式。
func IsTxHash(s string) bool {
	return txHashRe.MatchString(s)
}

// RPC 抽象链上查询能力，便于路由层在测试中替换实现。
type RPC interface {
	ChainID(ctx context.Context) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionByHash(ctx context.Context, hash string) (json.RawMessage, error)
	TransactionReceipt(ctx context.Context, hash string) (json.RawMessage, error)
	Logs(ctx context.Context, filter Filter) ([]json.RawMessage, error)
	Endpoint() Endpoint
}

// Client 通过 JSON-RPC 访问 EVM 链节点。所有调用串行发出，
// 单次调用受端点超时约束，瞬时失败交给重试执行器处理。
type Client struct {
	endpoint Endpoint
	rpc      *gethrpc.Client
	exec     *retry.Executor
	logger   *slog.Logger
}

// ClientOption 定义可选配置。
type ClientOption func(*Client)

// WithClientLogger 指定日志输出。
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetryExecutor 替换默认的重试执行器，测试时可注入零休眠实现。
func WithRetryExecutor(exec *retry.Executor) ClientOption {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Dial 连接端点并返回可用的客户端。
func Dial(ctx context.Context, endpoint Endpoint, opts ...ClientOption) (*Client, error) {
	url := strings.TrimSpace(endpoint.URL)
	if url == "" {
		return nil, xerrors.New(xerrors.CodeNotConfigured, "未配置 RPC 地址")
	}
	endpoint.URL = url

	rpcClient, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, "连接链节点失败")
	}

	c := &Client{
		endpoint: endpoint,
		rpc:      rpcClient,
		exec:     retry.New(endpoint.Retries),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Close 释放网络连接。
func (c *Client) Close() {
	if c != nil && c.rpc != nil {
		c.rpc.Close()
	}
}

// Endpoint 返回只读端点配置。
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// call 发出一次带超时与重试的 JSON-RPC 调用。
func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	return c.exec.Do(ctx, func(ctx context.Context) error {
		callCtx := ctx
		if c.endpoint.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.endpoint.Timeout)
			defer cancel()
		}
		err := c.rpc.CallContext(callCtx, result, method, args...)
		return classifyCallError(err, method)
	})
}

// classifyCallError 区分传输失败与远端显式报错，并统一包装。
func classifyCallError(err error, method string) error {
	if err == nil {
		return nil
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, fmt.Sprintf("%s 调用超时", method))
	}
	var rpcErr gethrpc.Error
	if stdErrors.As(err, &rpcErr) {
		return xerrors.Wrap(xerrors.CodeRemoteError, err, fmt.Sprintf("%s 被节点拒绝", method))
	}
	return xerrors.Wrap(xerrors.CodeTransportFailure, err, fmt.Sprintf("请求 %s 失败", method))
}

// ChainID 返回规范化后的整数链标识。
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var raw json.RawMessage
	if err := c.call(ctx, &raw, "eth_chainId"); err != nil {
		return 0, err
	}
	return parseQuantity(raw)
}

// BlockNumber 返回当前区块高度。
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var raw json.RawMessage
	if err := c.call(ctx, &raw, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return parseQuantity(raw)
}

// TransactionByHash 返回交易原文。交易不存在时结果为 JSON null。
func (c *Client) TransactionByHash(ctx context.Context, hash string) (json.RawMessage, error) {
	if !IsTxHash(hash) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("交易哈希格式非法: %s", hash))
	}
	var raw json.RawMessage
	if err := c.call(ctx, &raw, "eth_getTransactionByHash", hash); err != nil {
		return nil, err
	}
	return normalizeNull(raw), nil
}

// TransactionReceipt 返回交易回执。回执不存在时结果为 JSON null。
func (c *Client) TransactionReceipt(ctx context.Context, hash string) (json.RawMessage, error) {
	if !IsTxHash(hash) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("交易哈希格式非法: %s", hash))
	}
	var raw json.RawMessage
	if err := c.call(ctx, &raw, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	return normalizeNull(raw), nil
}

// EthCall 以 latest 状态执行一次只读合约调用，返回十六进制结果。
func (c *Client) EthCall(ctx context.Context, to string, data string) (string, error) {
	var result string
	call := map[string]string{"to": to, "data": data}
	if err := c.call(ctx, &result, "eth_call", call, string(TagLatest)); err != nil {
		return "", err
	}
	return result, nil
}

// Logs 执行一次 eth_getLogs 查询。结果为空时返回空切片而不是 nil。
func (c *Client) Logs(ctx context.Context, filter Filter) ([]json.RawMessage, error) {
	var logs []json.RawMessage
	if err := c.call(ctx, &logs, "eth_getLogs", filter); err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []json.RawMessage{}
	}
	return logs, nil
}

// parseQuantity 解析 RPC 返回的数量值：0x 前缀按十六进制，
// 其余字符串按十进制，裸数字直接取整。
func parseQuantity(raw json.RawMessage) (uint64, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		s := strings.TrimSpace(asString)
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			n, err := strconv.ParseUint(s[2:], 16, 64)
			if err != nil {
				return 0, xerrors.Wrap(xerrors.CodeRemoteError, err, "节点返回的十六进制数量无法解析")
			}
			return n, nil
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, xerrors.Wrap(xerrors.CodeRemoteError, err, "节点返回的数量无法解析")
		}
		return n, nil
	}
	var asNumber uint64
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeRemoteError, err, "节点返回的数量格式异常")
	}
	return asNumber, nil
}

func normalizeNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
