// Package openai 通过 OpenAI 兼容的 Chat Completions 协议访问推理后端。
// Chutes TEE 与 EigenAI 都暴露这一协议，仅在鉴权头上有差异。
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lattibeaudiere/eigenclaw/internal/classify"
	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 400
)

// Config 描述调用一个 Chat Completions 后端所需的信息。
type Config struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// XAPIKeyHeader 为 true 时在请求中附带 x-api-key 头，EigenAI 需要。
	XAPIKeyHeader bool
}

// Client 是单个推理后端的 HTTP 客户端。
type Client struct {
	name          string
	baseURL       string
	apiKey        string
	model         string
	xAPIKeyHeader bool
	httpClient    *http.Client
}

// NewClient 根据配置创建客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeNotConfigured,
			fmt.Sprintf("推理后端 %s 缺少 API Key", cfg.Name))
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, xerrors.New(xerrors.CodeNotConfigured,
			fmt.Sprintf("推理后端 %s 缺少地址", cfg.Name))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, xerrors.New(xerrors.CodeNotConfigured,
			fmt.Sprintf("推理后端 %s 缺少模型名", cfg.Name))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = baseURL
	}
	return &Client{
		name:          name,
		baseURL:       baseURL,
		apiKey:        apiKey,
		model:         model,
		xAPIKeyHeader: cfg.XAPIKeyHeader,
		httpClient:    &http.Client{Timeout: timeout},
	}, nil
}

// Backend 返回后端标识。
func (c *Client) Backend() string {
	return fmt.Sprintf("%s (%s)", c.name, c.baseURL)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// Classify 实现 classify.Classifier。响应必须是纯 JSON 标签，
// 其余内容按 NON_JSON_RESPONSE 处理并携带原文。
func (c *Client) Classify(ctx context.Context, description string) (*classify.Label, error) {
	content, err := c.complete(ctx, description)
	if err != nil {
		return nil, err
	}
	var label classify.Label
	if err := json.Unmarshal([]byte(content), &label); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeNonJSONResponse, err,
			"推理后端未返回 JSON 标签", xerrors.WithMetadata("raw", content))
	}
	return &label, nil
}

func (c *Client) complete(ctx context.Context, description string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: classify.SystemPrompt},
			{Role: "user", Content: description},
		},
		Temperature: 0,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构建推理请求失败")
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构建推理请求失败")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.xAPIKeyHeader {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", xerrors.Wrap(xerrors.CodeTimeout, err, "推理请求被取消")
		}
		return "", xerrors.Wrap(xerrors.CodeTransportFailure, err,
			fmt.Sprintf("请求 %s 失败", c.name))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		snippet := strings.TrimSpace(string(body))
		code := xerrors.CodeRemoteError
		// 鉴权失败重试无望，按不可重试处理。
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", xerrors.New(code,
				fmt.Sprintf("%s 拒绝鉴权，状态 %d: %s", c.name, resp.StatusCode, snippet),
				xerrors.WithRetryable(false))
		}
		return "", xerrors.New(code,
			fmt.Sprintf("%s 返回错误状态 %d: %s", c.name, resp.StatusCode, snippet))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", xerrors.Wrap(xerrors.CodeRemoteError, err,
			fmt.Sprintf("解析 %s 响应失败", c.name))
	}
	if len(decoded.Choices) == 0 {
		return "", xerrors.New(xerrors.CodeRemoteError,
			fmt.Sprintf("%s 响应中没有有效的 choices", c.name))
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", xerrors.New(xerrors.CodeRemoteError,
			fmt.Sprintf("%s 响应内容为空", c.name))
	}
	return content, nil
}
