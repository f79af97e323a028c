package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/vibecheck/backend/internal/logging"
	"github.com/zhouzirui/vibecheck/backend/internal/observe"
	"github.com/zhouzirui/vibecheck/backend/pkg/utils"
)

// RateLimitOptions 配置限流器。
type RateLimitOptions struct {
	// Limit 每秒允许的请求数
	Limit rate.Limit
	// Burst 突发上限
	Burst int
	// Expiry 客户端状态在内存中保留的时长
	Expiry time.Duration
	// KeyFunc 从请求中提取限流键
	KeyFunc func(*http.Request) string
}

// DefaultRateLimitOptions 返回默认配置：每个客户端 1 次/秒，突发 5 次。
func DefaultRateLimitOptions() RateLimitOptions {
	return RateLimitOptions{
		Limit:   1,
		Burst:   5,
		Expiry:  time.Hour,
		KeyFunc: clientIP,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按客户端维护令牌桶。
type RateLimiter struct {
	mu      sync.Mutex
	opts    RateLimitOptions
	clients map[string]*client
	metrics *observe.Metrics
	log     *logrus.Entry
	now     func() time.Time
}

// NewRateLimiter 创建限流器，零值字段使用默认配置。
func NewRateLimiter(opts RateLimitOptions, m *observe.Metrics) *RateLimiter {
	def := DefaultRateLimitOptions()
	if opts.Limit <= 0 {
		opts.Limit = def.Limit
	}
	if opts.Burst <= 0 {
		opts.Burst = def.Burst
	}
	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = def.KeyFunc
	}
	return &RateLimiter{
		opts:    opts,
		clients: make(map[string]*client),
		metrics: m,
		log:     logging.NewLogger("api"),
		now:     time.Now,
	}
}

// Middleware 返回 chi 兼容的中间件，超限时返回 429。
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.opts.KeyFunc(r)
		if !l.limiter(key).Allow() {
			l.metrics.RateLimited()
			l.log.WithFields(logrus.Fields{
				"path":   r.URL.Path,
				"method": r.Method,
			}).Warn("rate limit exceeded")

			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter()))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.opts.Burst))
			utils.RespondError(w, http.StatusTooManyRequests, "too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run 定期清理过期的客户端，直到 ctx 结束。
func (l *RateLimiter) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// Cleanup 删除超过 Expiry 未出现的客户端，返回删除数量。
func (l *RateLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for k, c := range l.clients {
		if now.Sub(c.lastSeen) > l.opts.Expiry {
			delete(l.clients, k)
			removed++
		}
	}
	return removed
}

// Clients 返回当前跟踪的客户端数量。
func (l *RateLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.opts.Limit, l.opts.Burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (l *RateLimiter) retryAfter() int {
	secs := int(1 / float64(l.opts.Limit))
	if secs < 1 {
		return 1
	}
	return secs
}

// clientIP 读取 RemoteAddr；chi 的 RealIP 中间件会先把代理头写入这里。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
