package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerIsCachedPerComponent(t *testing.T) {
	a := NewLogger("cache-test")
	b := NewLogger("cache-test")
	c := NewLogger("cache-test-other")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "cache-test", a.Data["component"])
}

func TestNewLoggerHonoursEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(&bytes.Buffer{}) })

	logger := NewLogger("env-test")
	assert.Equal(t, logrus.DebugLevel, logger.Logger.GetLevel())

	logger.WithField("sessions", 2).Debug("swept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "env-test", line["component"])
	assert.Equal(t, "swept", line["msg"])
	assert.Equal(t, float64(2), line["sessions"])
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	logger := NewLogger("fallback-test")
	assert.Equal(t, logrus.InfoLevel, logger.Logger.GetLevel())
}
