package chain

import (
	"encoding/json"
	"time"
)

// Endpoint 是一次调用范围内共享的只读端点配置。
type Endpoint struct {
	URL       string
	Timeout   time.Duration
	Retries   int
	ChunkSize uint64
}

// Request 是路由器消费的规范化动作请求。
type Request struct {
	Action    string `json:"action"`
	TxHash    string `json:"tx_hash,omitempty"`
	Address   any    `json:"address,omitempty"`
	Topics    []any  `json:"topics,omitempty"`
	FromBlock any    `json:"from_block,omitempty"`
	ToBlock   any    `json:"to_block,omitempty"`
	RPCURL    string `json:"rpc_url,omitempty"`
}

// Filter 对应 eth_getLogs 的过滤参数。区块边界始终为十六进制或符号标签。
type Filter struct {
	Address   any      `json:"address,omitempty"`
	Topics    []any    `json:"topics,omitempty"`
	FromBlock BlockTag `json:"fromBlock"`
	ToBlock   BlockTag `json:"toBlock"`
}

// ChainIDResult 是 chain_id 动作的响应。
type ChainIDResult struct {
	RPCURL  string `json:"rpc_url"`
	ChainID uint64 `json:"chain_id"`
}

// BlockNumberResult 是 block_number 动作的响应。
type BlockNumberResult struct {
	RPCURL      string `json:"rpc_url"`
	BlockNumber uint64 `json:"block_number"`
}

// TxBundle 把交易原文、回执与派生字段组合成一次性的查询结果。
// 结果按请求构建，不做缓存；三次底层调用之间没有一致性保证，
// 链在调用间推进时回执可能比交易快照更新。
type TxBundle struct {
	RPCURL       string            `json:"rpc_url"`
	TxHash       string            `json:"tx_hash"`
	ChainID      uint64            `json:"chain_id"`
	Tx           json.RawMessage   `json:"tx"`
	Receipt      json.RawMessage   `json:"receipt"`
	Status       json.RawMessage   `json:"status"`
	Logs         []json.RawMessage `json:"logs"`
	ReceiptError string            `json:"receipt_error,omitempty"`
}

// LogsResult 是非分块 get_logs 动作的响应。
type LogsResult struct {
	RPCURL   string            `json:"rpc_url"`
	ChainID  uint64            `json:"chain_id"`
	Filter   Filter            `json:"filter"`
	LogCount int               `json:"log_count"`
	Logs     []json.RawMessage `json:"logs"`
}

// ScanResult 汇总分块扫描的结果。Logs 保持分块顺序，即区块升序。
type ScanResult struct {
	RPCURL    string            `json:"rpc_url"`
	ChainID   uint64            `json:"chain_id"`
	Address   any               `json:"address"`
	Topics    []any             `json:"topics"`
	FromBlock uint64            `json:"from_block"`
	ToBlock   uint64            `json:"to_block"`
	ChunkSize uint64            `json:"chunk_size"`
	Chunks    int               `json:"chunks"`
	LogCount  int               `json:"log_count"`
	Logs      []json.RawMessage `json:"logs"`
}
