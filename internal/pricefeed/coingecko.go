package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

const defaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"

// symbolToID 把常见代币符号映射到 CoinGecko 的 coin id。
var symbolToID = map[string]string{
	"ETH":  "ethereum",
	"WETH": "weth",
	"WBTC": "wrapped-bitcoin",
	"BTC":  "bitcoin",
	"USDC": "usd-coin",
	"USDT": "tether",
	"DAI":  "dai",
	"ARB":  "arbitrum",
	"LINK": "chainlink",
	"AAVE": "aave",
	"GHO":  "gho",
}

// PriceRequest 描述一次估值查询。Symbols 与 IDs 二选一，IDs 优先。
type PriceRequest struct {
	Symbols    []string `json:"symbols,omitempty"`
	IDs        []string `json:"ids,omitempty"`
	VsCurrency string   `json:"vs_currency,omitempty"`
}

// PriceReport 汇总一次查询的结果。Prices 的键在符号可解析时用符号，
// 否则用 coin id。
type PriceReport struct {
	Source         string                    `json:"source"`
	Endpoint       string                    `json:"endpoint"`
	VsCurrency     string                    `json:"vs_currency"`
	Prices         map[string]map[string]any `json:"prices"`
	MissingSymbols []string                  `json:"missing_symbols"`
	ResolvedIDs    []string                  `json:"resolved_ids"`
}

// CoinGecko 查询 /simple/price 接口。有 API Key 时先按 pro 头发送，
// 失败后退到 demo 头，最后再裸调一次。
type CoinGecko struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// CoinGeckoOption 定义可选配置。
type CoinGeckoOption func(*CoinGecko)

// WithHTTPClient 替换 HTTP 客户端，测试时注入。
func WithHTTPClient(client *http.Client) CoinGeckoOption {
	return func(c *CoinGecko) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewCoinGecko 构造客户端。baseURL 为空时依次取环境变量与官方地址。
func NewCoinGecko(baseURL, apiKey string, opts ...CoinGeckoOption) *CoinGecko {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = strings.TrimSpace(os.Getenv("COINGECKO_BASE_URL"))
	}
	if baseURL == "" {
		baseURL = defaultCoinGeckoBaseURL
	}
	if strings.TrimSpace(apiKey) == "" {
		apiKey = strings.TrimSpace(os.Getenv("COINGECKO_API_KEY"))
	}
	c := &CoinGecko{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Fetch 执行一次估值查询。
func (c *CoinGecko) Fetch(ctx context.Context, req PriceRequest) (*PriceReport, error) {
	vsCurrency := strings.ToLower(strings.TrimSpace(req.VsCurrency))
	if vsCurrency == "" {
		vsCurrency = "usd"
	}

	ids, idToSymbol, missing := resolveIDs(req)
	if len(ids) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "没有可解析的代币符号或 id")
	}

	raw, err := c.simplePrice(ctx, ids, vsCurrency)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]map[string]any)
	for _, id := range ids {
		entry, ok := raw[id]
		if !ok {
			continue
		}
		label := id
		if sym, ok := idToSymbol[id]; ok {
			label = sym
		}
		prices[label] = entry
	}

	return &PriceReport{
		Source:         "coingecko",
		Endpoint:       "/simple/price",
		VsCurrency:     vsCurrency,
		Prices:         prices,
		MissingSymbols: missing,
		ResolvedIDs:    ids,
	}, nil
}

// resolveIDs 把请求归一成 coin id 列表。显式 ids 原样采用；
// 符号经映射表解析，查不到的记入 missing。
func resolveIDs(req PriceRequest) (ids []string, idToSymbol map[string]string, missing []string) {
	idToSymbol = make(map[string]string)
	missing = []string{}

	if len(req.IDs) > 0 {
		for _, id := range req.IDs {
			id = strings.ToLower(strings.TrimSpace(id))
			if id != "" {
				ids = append(ids, id)
			}
		}
		return ids, idToSymbol, missing
	}

	for _, s := range req.Symbols {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" {
			continue
		}
		if id, ok := symbolToID[sym]; ok {
			ids = append(ids, id)
			idToSymbol[id] = sym
		} else {
			missing = append(missing, sym)
		}
	}
	return ids, idToSymbol, missing
}

func (c *CoinGecko) simplePrice(ctx context.Context, ids []string, vsCurrency string) (map[string]map[string]any, error) {
	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", vsCurrency)
	params.Set("include_market_cap", "true")
	params.Set("include_24hr_vol", "true")
	params.Set("include_24hr_change", "true")
	params.Set("include_last_updated_at", "true")
	endpoint := c.baseURL + "/simple/price?" + params.Encode()

	var attempts []map[string]string
	if c.apiKey != "" {
		attempts = append(attempts,
			map[string]string{"x-cg-pro-api-key": c.apiKey},
			map[string]string{"x-cg-demo-api-key": c.apiKey},
		)
	}
	attempts = append(attempts, map[string]string{})

	var lastErr error
	for _, auth := range attempts {
		result, err := c.attempt(ctx, endpoint, auth)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *CoinGecko) attempt(ctx context.Context, endpoint string, auth map[string]string) (map[string]map[string]any, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构建行情请求失败")
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range auth {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, "请求 CoinGecko 失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 220))
		return nil, xerrors.New(xerrors.CodeRemoteError,
			fmt.Sprintf("CoinGecko 返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var decoded map[string]map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeRemoteError, err, "解析 CoinGecko 响应失败")
	}
	return decoded, nil
}
