package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/metrics"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Session   SessionConfig
	Privacy   PrivacyConfig
	RateLimit RateLimitConfig
	Vibe      VibeConfig
	Metrics   metrics.Config
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	privacy, err := loadPrivacyConfig()
	if err != nil {
		return nil, err
	}

	limit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	vibe, err := loadVibeConfig()
	if err != nil {
		return nil, err
	}

	metricsCfg, err := LoadMetricsFile(strings.TrimSpace(os.Getenv("METRICS_CONFIG")))
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Session:   session,
		Privacy:   privacy,
		RateLimit: limit,
		Vibe:      vibe,
		Metrics:   metricsCfg,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// SessionConfig 描述内存会话的生命周期与容量。
type SessionConfig struct {
	TTL              time.Duration
	Capacity         int
	SweepInterval    time.Duration
	MaxTranscriptLen int64
}

func loadSessionConfig() (SessionConfig, error) {
	ttl, err := parseDurationEnv("SESSION_TTL", 30*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	sweep, err := parseDurationEnv("SESSION_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	capacity := 100
	if override, err := parseOptionalIntEnv("SESSION_CAPACITY"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_CAPACITY value %d: must be positive", *override)
		}
		capacity = *override
	}

	maxBytes := int64(10 << 20) // 默认 10 MiB
	if override, err := parseOptionalIntEnv("MAX_TRANSCRIPT_BYTES"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return SessionConfig{}, fmt.Errorf("invalid MAX_TRANSCRIPT_BYTES value %d: must be positive", *override)
		}
		maxBytes = int64(*override)
	}

	return SessionConfig{
		TTL:              ttl,
		Capacity:         capacity,
		SweepInterval:    sweep,
		MaxTranscriptLen: maxBytes,
	}, nil
}

// PrivacyConfig 控制假名化与敏感信息遮盖。
type PrivacyConfig struct {
	Pseudonymize bool
	Redact       bool
}

func loadPrivacyConfig() (PrivacyConfig, error) {
	pseudo, err := parseBoolEnv("PRIVACY_PSEUDONYMIZE", true)
	if err != nil {
		return PrivacyConfig{}, err
	}

	redact, err := parseBoolEnv("PRIVACY_REDACT", true)
	if err != nil {
		return PrivacyConfig{}, err
	}

	return PrivacyConfig{Pseudonymize: pseudo, Redact: redact}, nil
}

// RateLimitConfig 描述上传接口的限流参数。
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	cfg := RateLimitConfig{RPS: 1, Burst: 5}

	rps, err := parseOptionalFloatEnv("UPLOAD_RATE_LIMIT")
	if err != nil {
		return RateLimitConfig{}, err
	}
	if rps != nil {
		cfg.RPS = *rps
	}

	burst, err := parseOptionalIntEnv("UPLOAD_RATE_BURST")
	if err != nil {
		return RateLimitConfig{}, err
	}
	if burst != nil {
		cfg.Burst = *burst
	}

	if cfg.RPS <= 0 || cfg.Burst < 1 {
		return RateLimitConfig{}, fmt.Errorf("invalid upload rate limit %v/%d: both must be positive", cfg.RPS, cfg.Burst)
	}
	return cfg, nil
}

// VibeConfig 描述可选的大模型情绪打分配置。
type VibeConfig struct {
	LLMEnabled    bool
	Timeout       time.Duration
	ReportTimeout time.Duration
	MaxCalls      int
	RPS           float64
	APIKey        string
	AccessKey     string
	SecretKey     string
	Model         string
	BaseURL       string
	Region        string
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
}

// Enabled 表示是否开启并提供了必需的密钥。
func (c VibeConfig) Enabled() bool {
	return c.LLMEnabled && c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c VibeConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadVibeConfig() (VibeConfig, error) {
	enabled, err := parseBoolEnv("VIBE_LLM_ENABLED", false)
	if err != nil {
		return VibeConfig{}, err
	}

	timeout, err := parseDurationEnv("VIBE_LLM_TIMEOUT", 5*time.Second)
	if err != nil {
		return VibeConfig{}, err
	}

	reportTimeout, err := parseDurationEnv("VIBE_LLM_REPORT_TIMEOUT", 30*time.Second)
	if err != nil {
		return VibeConfig{}, err
	}

	// 单份报告最多调用大模型的次数，其余消息使用词典
	maxCalls := 200
	if override, err := parseOptionalIntEnv("VIBE_LLM_MAX_CALLS"); err != nil {
		return VibeConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return VibeConfig{}, fmt.Errorf("invalid VIBE_LLM_MAX_CALLS value %d: must be positive", *override)
		}
		maxCalls = *override
	}

	rps := 2.0
	if override, err := parseOptionalFloatEnv("VIBE_LLM_RPS"); err != nil {
		return VibeConfig{}, err
	} else if override != nil {
		rps = *override
	}

	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return VibeConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return VibeConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return VibeConfig{}, err
	}

	return VibeConfig{
		LLMEnabled:    enabled,
		Timeout:       timeout,
		ReportTimeout: reportTimeout,
		MaxCalls:      maxCalls,
		RPS:           rps,
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:         strings.TrimSpace(os.Getenv("Model")),
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
	}, nil
}

// LoadMetricsFile 读取 YAML 格式的指标参数并与默认值合并；path 为空时返回默认值。
func LoadMetricsFile(path string) (metrics.Config, error) {
	if path == "" {
		return metrics.DefaultConfig(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return metrics.Config{}, fmt.Errorf("open metrics config: %w", err)
	}
	defer f.Close()

	return DecodeMetrics(f)
}

// DecodeMetrics 解析 YAML，未知字段视为错误。
func DecodeMetrics(r io.Reader) (metrics.Config, error) {
	var cfg metrics.Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return metrics.Config{}, fmt.Errorf("decode metrics config: %w", err)
	}

	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return metrics.Config{}, fmt.Errorf("invalid metrics config: %w", err)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv 同时接受 "90s" 形式与纯数字秒数。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		raw = strconv.Itoa(secs) + "s"
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
