package sentiment

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/metrics"
	"github.com/zhouzirui/vibecheck/backend/internal/analysis/vibe"
	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
	"github.com/zhouzirui/vibecheck/backend/internal/observe"
)

type fakeModel struct {
	reply string
	err   error
	delay time.Duration
	calls atomic.Int32
	last  atomic.Value
}

func (f *fakeModel) Generate(ctx context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.calls.Add(1)
	if len(in) > 0 {
		f.last.Store(in[len(in)-1].Content)
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

var constant = vibe.ScorerFunc(func(string) float64 { return 0.25 })

func newService(t *testing.T, m model.BaseChatModel, cfg Config) *Service {
	t.Helper()
	svc, err := NewService(t.Context(), m, cfg, constant, observe.New(prometheus.NewRegistry()))
	require.NoError(t, err)
	return svc
}

func TestServiceUsesModelScore(t *testing.T) {
	fm := &fakeModel{reply: "Sure! {\"score\": 0.9}"}
	svc := newService(t, fm, Config{Enabled: true})

	require.True(t, svc.Enabled())
	assert.InDelta(t, 0.9, svc.Score("what a great day"), 1e-9)
	assert.Contains(t, fm.last.Load(), "what a great day")
}

func TestServiceClampsModelScore(t *testing.T) {
	svc := newService(t, &fakeModel{reply: `{"score": 4}`}, Config{Enabled: true})
	assert.Equal(t, 1.0, svc.Score("amazing"))
}

func TestServiceCachesScores(t *testing.T) {
	fm := &fakeModel{reply: `{"score": -0.4}`}
	svc := newService(t, fm, Config{Enabled: true})

	for range 3 {
		assert.InDelta(t, -0.4, svc.Score("meh"), 1e-9)
	}
	assert.EqualValues(t, 1, fm.calls.Load())
}

func TestServiceCacheEvictsOldest(t *testing.T) {
	fm := &fakeModel{reply: `{"score": 0.5}`}
	svc := newService(t, fm, Config{Enabled: true, CacheSize: 2, RPS: 1000, Burst: 100})

	svc.Score("a")
	svc.Score("b")
	svc.Score("c")
	svc.Score("a")
	assert.EqualValues(t, 4, fm.calls.Load())

	svc.Score("c")
	assert.EqualValues(t, 4, fm.calls.Load())
}

func TestServiceFallbacks(t *testing.T) {
	tests := []struct {
		name string
		svc  func(t *testing.T) *Service
	}{
		{
			name: "disabled",
			svc: func(t *testing.T) *Service {
				return newService(t, &fakeModel{reply: `{"score": 1}`}, Config{Enabled: false})
			},
		},
		{
			name: "nil model",
			svc: func(t *testing.T) *Service {
				return newService(t, nil, Config{Enabled: true})
			},
		},
		{
			name: "model error",
			svc: func(t *testing.T) *Service {
				return newService(t, &fakeModel{err: errors.New("boom")}, Config{Enabled: true})
			},
		},
		{
			name: "unparseable output",
			svc: func(t *testing.T) *Service {
				return newService(t, &fakeModel{reply: "positive, I think"}, Config{Enabled: true})
			},
		},
		{
			name: "missing score",
			svc: func(t *testing.T) *Service {
				return newService(t, &fakeModel{reply: `{"label": "happy"}`}, Config{Enabled: true})
			},
		},
		{
			name: "timeout",
			svc: func(t *testing.T) *Service {
				return newService(t, &fakeModel{reply: `{"score": 1}`, delay: time.Second}, Config{Enabled: true, Timeout: 10 * time.Millisecond})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 0.25, tt.svc(t).Score("hello there"))
		})
	}
}

func TestServiceBudgetFallsBack(t *testing.T) {
	fm := &fakeModel{reply: `{"score": 0.8}`}
	svc := newService(t, fm, Config{Enabled: true, RPS: 0.001, Burst: 1})

	assert.InDelta(t, 0.8, svc.Score("first"), 1e-9)
	assert.Equal(t, 0.25, svc.Score("second"))
	assert.EqualValues(t, 1, fm.calls.Load())
}

func TestReportScorerCapsModelCalls(t *testing.T) {
	fm := &fakeModel{reply: `{"score": 0.8}`}
	svc := newService(t, fm, Config{Enabled: true, MaxCalls: 2, RPS: 1000, Burst: 100})

	scorer, release := svc.ForReport(t.Context())
	defer release()

	var got []float64
	for i := range 5 {
		got = append(got, scorer.Score(fmt.Sprintf("message %d", i)))
	}
	assert.Equal(t, []float64{0.8, 0.8, 0.25, 0.25, 0.25}, got)
	assert.EqualValues(t, 2, fm.calls.Load())

	// 缓存命中不消耗预算
	assert.Equal(t, 0.8, scorer.Score("message 0"))
	assert.EqualValues(t, 2, fm.calls.Load())
}

func TestReportScorerWaitsForLimiter(t *testing.T) {
	fm := &fakeModel{reply: `{"score": 0.8}`}
	svc := newService(t, fm, Config{Enabled: true, MaxCalls: 10, RPS: 40, Burst: 1})

	scorer, release := svc.ForReport(t.Context())
	defer release()

	for i := range 3 {
		assert.Equal(t, 0.8, scorer.Score(fmt.Sprintf("message %d", i)))
	}
	assert.EqualValues(t, 3, fm.calls.Load())
}

func TestReportScorerStopsAtDeadline(t *testing.T) {
	fm := &fakeModel{reply: `{"score": 0.8}`, delay: 50 * time.Millisecond}
	svc := newService(t, fm, Config{
		Enabled:       true,
		Timeout:       time.Second,
		ReportTimeout: 120 * time.Millisecond,
		MaxCalls:      1000,
		RPS:           1000,
		Burst:         1000,
	})

	scorer, release := svc.ForReport(t.Context())
	defer release()

	start := time.Now()
	for i := range 100 {
		scorer.Score(fmt.Sprintf("message %d", i))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.LessOrEqual(t, fm.calls.Load(), int32(3))
	assert.Equal(t, 0.25, scorer.Score("after the deadline"))
}

func TestEngineReportTimeIsBounded(t *testing.T) {
	fm := &fakeModel{reply: `{"score": 0.5}`, delay: 20 * time.Millisecond}
	svc := newService(t, fm, Config{
		Enabled:       true,
		Timeout:       time.Second,
		ReportTimeout: 100 * time.Millisecond,
		RPS:           1000,
		Burst:         1000,
	})

	base := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
	msgs := make([]chat.Message, 200)
	for i := range msgs {
		msgs[i] = chat.Message{
			Index:     i,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Sender:    []string{"A", "B"}[i%2],
			Text:      fmt.Sprintf("message number %d", i),
		}
	}

	start := time.Now()
	report, err := metrics.New(metrics.DefaultConfig(), svc).Compute(t.Context(), msgs)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "200 calls at 20ms would take 4s")
	assert.Equal(t, 200, report.Vibe.Scored)
	assert.Less(t, fm.calls.Load(), int32(200))
}

func TestServiceEmptyText(t *testing.T) {
	fm := &fakeModel{reply: `{"score": 0.8}`}
	svc := newService(t, fm, Config{Enabled: true})

	assert.Zero(t, svc.Score("   "))
	assert.Zero(t, fm.calls.Load())
}

func TestParseScore(t *testing.T) {
	v, err := parseScore("```json\n{\"score\": -0.3}\n```")
	require.NoError(t, err)
	assert.InDelta(t, -0.3, v, 1e-9)

	_, err = parseScore("no json")
	assert.Error(t, err)
}
