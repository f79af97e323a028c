package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/metrics"
)

var managedEnv = []string{
	"PORT", "SESSION_TTL", "SESSION_CAPACITY", "SESSION_SWEEP_INTERVAL", "MAX_TRANSCRIPT_BYTES",
	"PRIVACY_PSEUDONYMIZE", "PRIVACY_REDACT", "UPLOAD_RATE_LIMIT", "UPLOAD_RATE_BURST",
	"VIBE_LLM_ENABLED", "VIBE_LLM_TIMEOUT", "VIBE_LLM_RPS", "VIBE_LLM_MAX_CALLS", "VIBE_LLM_REPORT_TIMEOUT",
	"METRICS_CONFIG",
	"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "Model", "ARK_TEMPERATURE", "ARK_TOP_P", "ARK_MAX_TOKENS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range managedEnv {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Session.TTL != 30*time.Minute || cfg.Session.Capacity != 100 || cfg.Session.SweepInterval != time.Minute {
		t.Fatalf("unexpected session config %+v", cfg.Session)
	}
	if cfg.Session.MaxTranscriptLen != 10<<20 {
		t.Fatalf("unexpected max transcript size %d", cfg.Session.MaxTranscriptLen)
	}
	if !cfg.Privacy.Pseudonymize || !cfg.Privacy.Redact {
		t.Fatalf("privacy should default on: %+v", cfg.Privacy)
	}
	if cfg.Vibe.Enabled() {
		t.Fatal("llm scorer should be off without credentials")
	}
	if cfg.Vibe.MaxCalls != 200 || cfg.Vibe.ReportTimeout != 30*time.Second {
		t.Fatalf("unexpected llm budget %d / %v", cfg.Vibe.MaxCalls, cfg.Vibe.ReportTimeout)
	}
	if cfg.Metrics.MonologueThreshold != metrics.DefaultConfig().MonologueThreshold {
		t.Fatalf("expected default metrics config, got %+v", cfg.Metrics)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9090")
	t.Setenv("SESSION_TTL", "90")
	t.Setenv("SESSION_CAPACITY", "3")
	t.Setenv("PRIVACY_REDACT", "false")
	t.Setenv("UPLOAD_RATE_LIMIT", "0.5")
	t.Setenv("VIBE_LLM_ENABLED", "true")
	t.Setenv("VIBE_LLM_TIMEOUT", "250ms")
	t.Setenv("VIBE_LLM_MAX_CALLS", "25")
	t.Setenv("VIBE_LLM_REPORT_TIMEOUT", "2s")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "doubao")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Session.TTL != 90*time.Second || cfg.Session.Capacity != 3 {
		t.Fatalf("unexpected session config %+v", cfg.Session)
	}
	if cfg.Privacy.Redact {
		t.Fatal("expected redaction off")
	}
	if cfg.RateLimit.RPS != 0.5 || cfg.RateLimit.Burst != 5 {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if !cfg.Vibe.Enabled() || cfg.Vibe.Timeout != 250*time.Millisecond {
		t.Fatalf("unexpected vibe config %+v", cfg.Vibe)
	}
	if cfg.Vibe.MaxCalls != 25 || cfg.Vibe.ReportTimeout != 2*time.Second {
		t.Fatalf("unexpected llm budget %d / %v", cfg.Vibe.MaxCalls, cfg.Vibe.ReportTimeout)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"PORT":                 "80 80",
		"SESSION_TTL":          "soon",
		"SESSION_CAPACITY":     "0",
		"PRIVACY_PSEUDONYMIZE": "maybe",
		"UPLOAD_RATE_BURST":    "0",
		"VIBE_LLM_RPS":         "fast",
		"VIBE_LLM_MAX_CALLS":   "0",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestDecodeMetricsMergesDefaults(t *testing.T) {
	cfg, err := DecodeMetrics(strings.NewReader("monologue_threshold: 5\nsegment_gap: 45m\nvibe_bucket: week\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.MonologueThreshold != 5 || cfg.SegmentGap != 45*time.Minute || cfg.VibeBucket != metrics.BucketWeek {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.TopWords != metrics.DefaultConfig().TopWords {
		t.Fatalf("expected default top words, got %d", cfg.TopWords)
	}
}

func TestDecodeMetricsRejectsUnknownAndInvalid(t *testing.T) {
	for _, doc := range []string{
		"monologue_treshold: 5\n",
		"vibe_bucket: fortnight\n",
	} {
		if _, err := DecodeMetrics(strings.NewReader(doc)); err == nil {
			t.Fatalf("expected error for %q", doc)
		}
	}
}

func TestLoadMetricsFile(t *testing.T) {
	cfg, err := LoadMetricsFile("")
	if err != nil || cfg.TopWords != metrics.DefaultConfig().TopWords {
		t.Fatalf("empty path should give defaults: %+v, %v", cfg, err)
	}

	path := filepath.Join(t.TempDir(), "metrics.yaml")
	if err := os.WriteFile(path, []byte("top_words: 10\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadMetricsFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.TopWords != 10 {
		t.Fatalf("expected 10 top words, got %d", cfg.TopWords)
	}

	if _, err := LoadMetricsFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
