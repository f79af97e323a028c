// Package sentiment scores message sentiment with a chat model, falling back
// to the lexicon scorer whenever the model is unavailable.
package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/vibe"
	"github.com/zhouzirui/vibecheck/backend/internal/logging"
	"github.com/zhouzirui/vibecheck/backend/internal/observe"
)

// Fallback reasons reported to metrics.
const (
	ReasonDisabled = "disabled"
	ReasonBudget   = "budget"
	ReasonDeadline = "deadline"
	ReasonTimeout  = "timeout"
	ReasonError    = "error"
	ReasonParse    = "parse"
)

const (
	defaultTimeout       = 5 * time.Second
	defaultReportTimeout = 30 * time.Second
	defaultMaxCalls      = 200
	defaultRPS           = 2
	defaultCacheSize     = 1024
	maxPromptRunes       = 1000
)

// Config 控制 LLM 情绪打分的行为。
// MaxCalls 与 ReportTimeout 限制单份报告内的大模型调用。
type Config struct {
	Enabled       bool
	Timeout       time.Duration
	ReportTimeout time.Duration
	MaxCalls      int
	RPS           float64
	Burst         int
	CacheSize     int
}

// Service 使用大模型为单条消息打分，失败时回退到词典打分。
type Service struct {
	enabled       bool
	scorer        compose.Runnable[map[string]any, *schema.Message]
	fallback      vibe.Scorer
	limiter       *rate.Limiter
	timeout       time.Duration
	reportTimeout time.Duration
	maxCalls      int
	metrics       *observe.Metrics
	log           *logrus.Entry

	mu    sync.Mutex
	cache map[string]float64
	order []string
	next  int
}

// NewService 创建打分服务。chatModel 为 nil 或 cfg.Enabled 为 false 时只使用 fallback。
func NewService(ctx context.Context, chatModel model.BaseChatModel, cfg Config, fallback vibe.Scorer, m *observe.Metrics) (*Service, error) {
	if fallback == nil {
		fallback = vibe.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = defaultReportTimeout
	}
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = defaultMaxCalls
	}
	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RPS) + 1
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}

	svc := &Service{
		enabled:       cfg.Enabled && chatModel != nil,
		fallback:      fallback,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		timeout:       cfg.Timeout,
		reportTimeout: cfg.ReportTimeout,
		maxCalls:      cfg.MaxCalls,
		metrics:       m,
		log:           logging.NewLogger("vibe-llm"),
		cache:         make(map[string]float64, cfg.CacheSize),
		order:         make([]string, cfg.CacheSize),
	}
	if !svc.enabled {
		return svc, nil
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(scoreSystemPrompt),
		schema.UserMessage(scoreUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile vibe scorer chain: %w", err)
	}
	svc.scorer = runnable
	return svc, nil
}

// Enabled 返回是否会调用大模型。
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.scorer != nil
}

// Score implements vibe.Scorer.
func (s *Service) Score(text string) float64 {
	return s.ScoreContext(context.Background(), text)
}

// ScoreContext 为 text 打分，结果位于 [-1, 1]。限流时直接回退到词典。
func (s *Service) ScoreContext(ctx context.Context, text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	if !s.Enabled() {
		return s.fallbackScore(text, ReasonDisabled)
	}
	if v, ok := s.cached(text); ok {
		return v
	}
	if !s.limiter.Allow() {
		return s.fallbackScore(text, ReasonBudget)
	}
	return s.invoke(ctx, text)
}

// ForReport implements vibe.Budgeter. The returned scorer sends at most
// MaxCalls messages to the model and none once ReportTimeout has passed.
// It waits for the rate limiter rather than skipping, so which messages
// reach the model depends only on their order.
func (s *Service) ForReport(ctx context.Context) (vibe.Scorer, func()) {
	ctx, cancel := context.WithTimeout(ctx, s.reportTimeout)
	r := &reportScorer{svc: s, ctx: ctx}
	r.remaining.Store(int64(s.maxCalls))
	return r, func() {
		cancel()
		s.log.WithFields(logrus.Fields{
			"calls":     int64(s.maxCalls) - max(r.remaining.Load(), 0),
			"fallbacks": r.fallbacks.Load(),
		}).Debug("report scoring finished")
	}
}

var _ vibe.Budgeter = (*Service)(nil)

type reportScorer struct {
	svc       *Service
	ctx       context.Context
	remaining atomic.Int64
	fallbacks atomic.Int64
}

func (r *reportScorer) Score(text string) float64 {
	s := r.svc
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	if !s.Enabled() {
		return s.fallbackScore(text, ReasonDisabled)
	}
	if v, ok := s.cached(text); ok {
		return v
	}
	if r.ctx.Err() != nil {
		return r.fallback(text, ReasonDeadline)
	}
	if r.remaining.Add(-1) < 0 {
		return r.fallback(text, ReasonBudget)
	}
	if err := s.limiter.Wait(r.ctx); err != nil {
		return r.fallback(text, ReasonDeadline)
	}
	return s.invoke(r.ctx, text)
}

func (r *reportScorer) fallback(text, reason string) float64 {
	r.fallbacks.Add(1)
	return r.svc.fallbackScore(text, reason)
}

func (s *Service) invoke(ctx context.Context, text string) float64 {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg, err := s.scorer.Invoke(ctx, map[string]any{"message": truncate(text, maxPromptRunes)})
	if err != nil {
		reason := ReasonError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		s.log.WithError(err).Debug("scorer invoke failed, use fallback")
		return s.fallbackScore(text, reason)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return s.fallbackScore(text, ReasonParse)
	}

	score, err := parseScore(msg.Content)
	if err != nil {
		s.log.WithError(err).Debug("scorer output parse failed, use fallback")
		return s.fallbackScore(text, ReasonParse)
	}
	s.store(text, score)
	return score
}

func (s *Service) fallbackScore(text, reason string) float64 {
	s.metrics.ScorerFallback(reason)
	return vibe.Clamp(s.fallback.Score(text))
}

func (s *Service) cached(text string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache[text]
	return v, ok
}

// store 以环形顺序淘汰最早写入的缓存项。
func (s *Service) store(text string, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache[text]; ok {
		s.cache[text] = score
		return
	}
	if old := s.order[s.next]; old != "" {
		delete(s.cache, old)
	}
	s.order[s.next] = text
	s.next = (s.next + 1) % len(s.order)
	s.cache[text] = score
}

type scorePayload struct {
	Score *float64 `json:"score"`
}

// parseScore 解析大模型返回的 JSON。
func parseScore(content string) (float64, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return 0, fmt.Errorf("missing json object")
	}

	var payload scorePayload
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &payload); err != nil {
		return 0, err
	}
	if payload.Score == nil {
		return 0, fmt.Errorf("missing score field")
	}
	return vibe.Clamp(*payload.Score), nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

const scoreSystemPrompt = "You rate the sentiment of a single chat message. Reply with one JSON object only, containing a numeric field named score between -1 and 1. -1 is very negative, 0 is neutral, 1 is very positive. Do not add any other text."

const scoreUserPrompt = "Message:\n{message}"
