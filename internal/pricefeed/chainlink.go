// Package pricefeed 提供两条独立的估值数据源：链上 Chainlink 聚合器
// 与 CoinGecko 行情接口。
package pricefeed

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/lattibeaudiere/eigenclaw/internal/chain"
	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

// AggregatorV3Interface 的函数选择器。
const (
	latestRoundDataSelector = "0xfeaf968c"
	decimalsSelector        = "0x313ce567"
)

// ContractCaller 是 Chainlink 读数需要的最小链上能力。
type ContractCaller interface {
	EthCall(ctx context.Context, to string, data string) (string, error)
}

// DialFunc 按网络的 RPC 地址建立连接。
type DialFunc func(ctx context.Context, rpcURL string) (ContractCaller, error)

// Quote 是一次喂价读数。
type Quote struct {
	Pair      string  `json:"pair"`
	Price     float64 `json:"price"`
	Decimals  uint8   `json:"decimals"`
	UpdatedAt string  `json:"updated_at"`
	RoundID   string  `json:"round_id"`
	Network   string  `json:"network"`
	Feed      string  `json:"feed"`
}

// Chainlink 从已知网络上的聚合器合约读取最新价格。
type Chainlink struct {
	networks chain.NetworkDefinitions
	dial     DialFunc
}

// NewChainlink 构造喂价读取器。dial 为空时使用真实的 RPC 连接。
func NewChainlink(networks chain.NetworkDefinitions, dial DialFunc) *Chainlink {
	if dial == nil {
		dial = func(ctx context.Context, rpcURL string) (ContractCaller, error) {
			client, err := chain.Dial(ctx, chain.Endpoint{URL: rpcURL, Timeout: 10 * time.Second, Retries: 2})
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	}
	return &Chainlink{networks: networks, dial: dial}
}

// Fetch 读取指定网络上某交易对的最新价格。
func (c *Chainlink) Fetch(ctx context.Context, pair, network string) (*Quote, error) {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	network = strings.ToLower(strings.TrimSpace(network))

	def, ok := c.networks.Lookup(network)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("未知网络 %s，可选: %s", network, strings.Join(c.networkNames(), ", ")))
	}
	feed, ok := def.Feeds[pair]
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("网络 %s 上没有 %s 喂价，可选: %s", network, pair, strings.Join(feedNames(def), ", ")))
	}

	caller, err := c.dial(ctx, def.RPCURL)
	if err != nil {
		return nil, err
	}

	raw, err := caller.EthCall(ctx, feed, latestRoundDataSelector)
	if err != nil {
		return nil, err
	}
	roundID, answer, updatedAt, err := decodeLatestRoundData(raw)
	if err != nil {
		return nil, err
	}

	rawDecimals, err := caller.EthCall(ctx, feed, decimalsSelector)
	if err != nil {
		return nil, err
	}
	decimals, err := decodeUint8(rawDecimals)
	if err != nil {
		return nil, err
	}

	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	price, _ := new(big.Float).Quo(new(big.Float).SetInt(answer), divisor).Float64()

	return &Quote{
		Pair:      pair,
		Price:     price,
		Decimals:  decimals,
		UpdatedAt: time.Unix(updatedAt, 0).UTC().Format(time.RFC3339),
		RoundID:   roundID.String(),
		Network:   network,
		Feed:      feed,
	}, nil
}

func (c *Chainlink) networkNames() []string {
	names := make([]string, 0, len(c.networks.Networks))
	for name := range c.networks.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func feedNames(def chain.NetworkDefinition) []string {
	names := make([]string, 0, len(def.Feeds))
	for name := range def.Feeds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeLatestRoundData 解析 latestRoundData() 的 ABI 编码返回值：
// (uint80 roundId, int256 answer, uint256 startedAt, uint256 updatedAt, uint80 answeredInRound)，
// 每个值占 32 字节。
func decodeLatestRoundData(hexResult string) (roundID, answer *big.Int, updatedAt int64, err error) {
	words, err := abiWords(hexResult, 5)
	if err != nil {
		return nil, nil, 0, err
	}
	if !words[3].IsInt64() {
		return nil, nil, 0, xerrors.New(xerrors.CodeRemoteError, "喂价更新时间超出范围")
	}
	return words[0], words[1], words[3].Int64(), nil
}

func decodeUint8(hexResult string) (uint8, error) {
	words, err := abiWords(hexResult, 1)
	if err != nil {
		return 0, err
	}
	if !words[0].IsUint64() || words[0].Uint64() > 255 {
		return 0, xerrors.New(xerrors.CodeRemoteError, "decimals 返回值非法")
	}
	return uint8(words[0].Uint64()), nil
}

// abiWords 把 eth_call 的十六进制结果切成 32 字节整数序列。
func abiWords(hexResult string, want int) ([]*big.Int, error) {
	data := strings.TrimPrefix(strings.TrimSpace(hexResult), "0x")
	if len(data) < want*64 {
		return nil, xerrors.New(xerrors.CodeRemoteError,
			fmt.Sprintf("合约返回数据不足: 期望 %d 个字段, 得到 %d 字节", want, len(data)/2))
	}
	words := make([]*big.Int, want)
	for i := 0; i < want; i++ {
		word, ok := new(big.Int).SetString(data[i*64:(i+1)*64], 16)
		if !ok {
			return nil, xerrors.New(xerrors.CodeRemoteError, "合约返回数据不是十六进制")
		}
		words[i] = word
	}
	return words, nil
}
