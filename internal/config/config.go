package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config 描述 eigenclaw 启动阶段需要加载的全部配置。
type Config struct {
	Server     ServerConfig     `json:"server"`
	RPC        RPCConfig        `json:"rpc"`
	Classifier ClassifierConfig `json:"classifier"`
	Storage    StorageConfig    `json:"storage"`
	JobQueue   JobQueueConfig   `json:"job_queue"`
	Logging    LoggingConfig    `json:"logging"`
}

// ServerConfig 控制 HTTP 服务的监听地址与对外展示的网络名。
type ServerConfig struct {
	Address string `json:"address"`
	Network string `json:"network"`
}

// RPCConfig 是链上查询的端点配置。加载完成后在整个进程内只读共享。
type RPCConfig struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Retries        int    `json:"retries"`
	LogChunkSize   uint64 `json:"log_chunk_size"`
	ChainsFile     string `json:"chains_file"`
}

// Timeout 返回单次 RPC 调用的超时时间。
func (c RPCConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ClassifierConfig 配置交易分类后端。Chutes 为主端点，EigenAI 为回退端点。
type ClassifierConfig struct {
	Chutes      EndpointConfig `json:"chutes"`
	EigenAI     EndpointConfig `json:"eigenai"`
	Concurrency int            `json:"concurrency"`
	Retries     int            `json:"retries"`
}

// EndpointConfig 描述一个 OpenAI 兼容推理端点。
type EndpointConfig struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回单次推理调用的超时时间。
func (c EndpointConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveAPIKey 依次取直接配置与环境变量中的密钥。
func (c EndpointConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key
	}
	if c.APIKeyEnv != "" {
		return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
	}
	return ""
}

// StorageConfig 描述标注历史的持久化后端。
type StorageConfig struct {
	LabelStore LabelStoreConfig `json:"label_store"`
}

// LabelStoreConfig 默认不落库，配置 mysql 驱动后保存每条分类结果。
type LabelStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// JobQueueConfig 配置异步批量任务使用的队列。
type JobQueueConfig struct {
	Driver   string         `json:"driver"`
	Worker   int            `json:"worker"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 为 redis 队列驱动提供连接信息。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 为 rabbitmq 队列驱动提供连接信息。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// LoggingConfig 控制结构化日志与审计日志输出。
type LoggingConfig struct {
	Level   string      `json:"level"`
	Format  string      `json:"format"`
	Outputs []string    `json:"outputs"`
	Audit   AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志文件的滚动策略。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Load 解析指定路径的 JSON 配置文件，并叠加环境变量覆盖。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// FromEnv 在没有配置文件时（CLI 工具场景）仅凭环境变量构造配置。
func FromEnv() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults(".")
	return cfg
}

// applyEnv 读取原有部署约定的环境变量，覆盖文件中的同名字段。
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("ARBITRUM_RPC_URL")); v != "" {
		c.RPC.URL = v
	}
	if v, ok := envInt("RPC_HTTP_TIMEOUT_S"); ok {
		c.RPC.TimeoutSeconds = v
	}
	if v, ok := envInt("RPC_RETRIES"); ok {
		c.RPC.Retries = v
	}
	if v, ok := envInt("RPC_LOG_CHUNK_SIZE"); ok && v > 0 {
		c.RPC.LogChunkSize = uint64(v)
	}

	if v := strings.TrimSpace(os.Getenv("CHUTES_ENDPOINT")); v != "" {
		c.Classifier.Chutes.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CHUTES_API_KEY")); v != "" {
		c.Classifier.Chutes.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("CHUTES_MODEL")); v != "" {
		c.Classifier.Chutes.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("EIGENAI_BASE_URL")); v != "" {
		c.Classifier.EigenAI.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("EIGENCLOUD_API_KEY")); v != "" {
		c.Classifier.EigenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("EIGENAI_MODEL")); v != "" {
		c.Classifier.EigenAI.Model = v
	}

	if v := strings.TrimSpace(os.Getenv("APP_PORT")); v != "" {
		c.Server.Address = ":" + v
	}
	if v := strings.TrimSpace(os.Getenv("NETWORK_PUBLIC")); v != "" {
		c.Server.Network = v
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.Network == "" {
		c.Server.Network = "mainnet"
	}

	if c.RPC.URL == "" {
		c.RPC.URL = "https://arb1.arbitrum.io/rpc"
	}
	if c.RPC.TimeoutSeconds <= 0 {
		c.RPC.TimeoutSeconds = 20
	}
	if c.RPC.Retries <= 0 {
		c.RPC.Retries = 2
	}
	if c.RPC.LogChunkSize == 0 {
		c.RPC.LogChunkSize = 2000
	}
	if c.RPC.ChainsFile != "" && !filepath.IsAbs(c.RPC.ChainsFile) {
		c.RPC.ChainsFile = filepath.Join(baseDir, c.RPC.ChainsFile)
	}

	if c.Classifier.EigenAI.BaseURL == "" {
		c.Classifier.EigenAI.BaseURL = "https://eigenai.eigencloud.xyz/v1"
	}
	if c.Classifier.EigenAI.Model == "" {
		c.Classifier.EigenAI.Model = "gpt-oss-120b-f16"
	}
	if c.Classifier.Chutes.Model == "" {
		c.Classifier.Chutes.Model = "Llama-3.2-11B-Vision-Instruct"
	}
	if c.Classifier.Concurrency <= 0 {
		c.Classifier.Concurrency = 2
	}
	if c.Classifier.Retries <= 0 {
		c.Classifier.Retries = 2
	}

	if c.JobQueue.Driver == "" {
		c.JobQueue.Driver = "memory"
	}
	if c.JobQueue.Worker <= 0 {
		c.JobQueue.Worker = 1
	}

	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}
}

func envInt(name string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
