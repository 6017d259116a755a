package chain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

// BlockTag 是规范化后的区块引用：符号标签或 0x 前缀的十六进制高度。
type BlockTag string

const (
	TagLatest   BlockTag = "latest"
	TagEarliest BlockTag = "earliest"
	TagPending  BlockTag = "pending"
)

// NormalizeBlockTag 把多种形态的区块标识规范化为 BlockTag。
// 接受 nil（缺省 latest）、符号标签（大小写不敏感）、十进制或
// 0x 十六进制的字符串、以及各种整数类型。无法解析的字符串按文档
// 约定宽松降级为 latest；需要具体高度的调用方必须另行断言非符号。
func NormalizeBlockTag(v any) BlockTag {
	switch val := v.(type) {
	case nil:
		return TagLatest
	case BlockTag:
		return NormalizeBlockTag(string(val))
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		switch s {
		case string(TagLatest), string(TagEarliest), string(TagPending):
			return BlockTag(s)
		}
		if strings.HasPrefix(s, "0x") {
			return BlockTag(s)
		}
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return BlockTag(hexutil.EncodeUint64(n))
		}
		return TagLatest
	case int:
		return fromInt64(int64(val))
	case int32:
		return fromInt64(int64(val))
	case int64:
		return fromInt64(val)
	case uint64:
		return BlockTag(hexutil.EncodeUint64(val))
	case float64:
		// JSON 数字默认解码为 float64。
		if val < 0 {
			return TagLatest
		}
		return BlockTag(hexutil.EncodeUint64(uint64(val)))
	default:
		return TagLatest
	}
}

func fromInt64(n int64) BlockTag {
	if n < 0 {
		return TagLatest
	}
	return BlockTag(hexutil.EncodeUint64(uint64(n)))
}

// IsSymbolic 判断标签是否仍是符号引用。
func (t BlockTag) IsSymbolic() bool {
	switch t {
	case TagLatest, TagEarliest, TagPending:
		return true
	}
	return false
}

// Number 把具体标签解析为区块高度。符号标签返回 UNRESOLVED_RANGE 错误。
func (t BlockTag) Number() (uint64, error) {
	if t.IsSymbolic() {
		return 0, xerrors.New(xerrors.CodeUnresolvedRange,
			fmt.Sprintf("符号标签 %q 无法解析为具体高度", string(t)))
	}
	n, err := hexutil.DecodeUint64(string(t))
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeInvalidArgument, err,
			fmt.Sprintf("区块标签 %q 不是合法的十六进制高度", string(t)))
	}
	return n, nil
}
