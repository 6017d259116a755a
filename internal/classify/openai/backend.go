package openai

import (
	"log/slog"
	"strings"

	"github.com/lattibeaudiere/eigenclaw/internal/classify"
	"github.com/lattibeaudiere/eigenclaw/internal/config"
	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

// Build 依据配置组装分类后端：Chutes 为主，EigenAI 为回退。
// 两者都未配置时返回 NOT_CONFIGURED。
func Build(cfg config.ClassifierConfig, logger *slog.Logger) (classify.Classifier, error) {
	var primary, secondary classify.Classifier

	if chutesConfigured(cfg.Chutes) {
		client, err := NewClient(Config{
			Name: "Chutes TEE",
			// Chutes 端点配置的是裸地址，协议前缀在这里补上。
			BaseURL: strings.TrimRight(cfg.Chutes.BaseURL, "/") + "/v1",
			APIKey:  cfg.Chutes.ResolveAPIKey(),
			Model:   cfg.Chutes.Model,
			Timeout: cfg.Chutes.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		primary = client
	}

	if key := cfg.EigenAI.ResolveAPIKey(); key != "" {
		client, err := NewClient(Config{
			Name:          "EigenAI",
			BaseURL:       cfg.EigenAI.BaseURL,
			APIKey:        key,
			Model:         cfg.EigenAI.Model,
			Timeout:       cfg.EigenAI.Timeout(),
			XAPIKeyHeader: true,
		})
		if err != nil {
			return nil, err
		}
		if primary == nil {
			primary = client
		} else {
			secondary = client
		}
	}

	if primary == nil {
		return nil, xerrors.New(xerrors.CodeNotConfigured,
			"未配置任何推理后端，请设置 CHUTES_API_KEY+CHUTES_ENDPOINT 或 EIGENCLOUD_API_KEY")
	}
	if secondary == nil {
		return primary, nil
	}
	return classify.NewFallback(primary, secondary, logger), nil
}

func chutesConfigured(ep config.EndpointConfig) bool {
	return strings.TrimSpace(ep.BaseURL) != "" && ep.ResolveAPIKey() != ""
}
