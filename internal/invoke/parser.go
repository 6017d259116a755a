// Package invoke 把智能体传入的自由文本翻译成规范化的链查询请求。
// 命令行转发 JSON 时引号常被外层 shell 吞掉，因此除 JSON 对象外
// 还接受若干免引号的简写形式。
package invoke

import (
	"encoding/json"
	"strings"

	"github.com/lattibeaudiere/eigenclaw/internal/chain"
	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

// Parse 按层级解析一段调用文本：
//  1. 裸 66 字符交易哈希视为 tx_bundle；
//  2. chain_id / block_number 关键字简写；
//  3. tx_bundle、scan_logs、get_logs 的位置参数简写；
//  4. 完整 JSON 对象原样透传；
//  5. 其余非空输入报不可识别，空输入报缺失。
func Parse(raw string) (chain.Request, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return chain.Request{}, xerrors.New(xerrors.CodeInvalidInput, "缺少调用输入")
	}
	if chain.IsTxHash(raw) {
		return chain.Request{Action: "tx_bundle", TxHash: raw}, nil
	}

	lowered := strings.ToLower(raw)
	switch lowered {
	case "chain_id", "chainid":
		return chain.Request{Action: "chain_id"}, nil
	case "block_number", "blocknumber", "block":
		return chain.Request{Action: "block_number"}, nil
	}

	if strings.HasPrefix(lowered, "tx_bundle ") || strings.HasPrefix(lowered, "bundle ") {
		parts := strings.Fields(raw)
		if len(parts) >= 2 && chain.IsTxHash(parts[1]) {
			return chain.Request{Action: "tx_bundle", TxHash: parts[1]}, nil
		}
		// 哈希不合法时继续向下匹配，最终落入不可识别分支。
	}
	if strings.HasPrefix(lowered, "scan_logs ") {
		return positionalLogs("scan_logs", raw), nil
	}
	if strings.HasPrefix(lowered, "get_logs ") {
		return positionalLogs("get_logs", raw), nil
	}

	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		return parseJSON(raw)
	}

	return chain.Request{}, xerrors.New(xerrors.CodeUnrecognized,
		"无法识别的输入: "+raw)
}

// positionalLogs 解析 <action> <from> <to> <address?> <topic0?> 形式。
// 缺失的尾部参数视为未提供，地址与主题必须带 0x 前缀才会被采纳。
func positionalLogs(action, raw string) chain.Request {
	parts := strings.Fields(raw)
	req := chain.Request{Action: action}
	if len(parts) > 1 {
		req.FromBlock = parts[1]
	}
	if len(parts) > 2 {
		req.ToBlock = parts[2]
	}
	if len(parts) > 3 && strings.HasPrefix(parts[3], "0x") {
		req.Address = parts[3]
	}
	if len(parts) > 4 && strings.HasPrefix(parts[4], "0x") {
		req.Topics = []any{parts[4]}
	}
	return req
}

// parseJSON 要求输入是 JSON 对象，数组或标量一律拒绝。
func parseJSON(raw string) (chain.Request, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return chain.Request{}, xerrors.Wrap(xerrors.CodeInvalidInput, err, "JSON 输入不是对象")
	}
	var req chain.Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return chain.Request{}, xerrors.Wrap(xerrors.CodeInvalidInput, err, "JSON 输入字段类型非法")
	}
	return req, nil
}
