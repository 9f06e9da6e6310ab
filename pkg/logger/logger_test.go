package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo}).With(Component("store"))

	log.Debug("hidden")
	log.Info("task completed", String("task_id", "log-weight"), Int("points", 115))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "task completed", entry.Message)
	assert.Equal(t, "store", entry.Fields["component"])
	assert.Equal(t, "log-weight", entry.Fields["task_id"])
	assert.Equal(t, float64(115), entry.Fields["points"])
}

func TestLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelDebug, Format: FormatText})

	log.Warn("guidance failed", String("b", "2"), String("a", "1"))

	out := buf.String()
	assert.Contains(t, out, "WARN guidance failed a=1 b=2")
}

func TestLogger_WithDoesNotLeakFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Output: &buf, Level: LevelInfo, Format: FormatText})
	_ = base.With(String("request_id", "abc"))

	base.Info("plain")

	assert.NotContains(t, buf.String(), "request_id")
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, FormatText, ParseFormat("TEXT"))
	assert.Equal(t, FormatJSON, ParseFormat(""))
}

func TestContext(t *testing.T) {
	log := New(Options{Output: io.Discard})
	ctx := WithContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestFields(t *testing.T) {
	assert.Equal(t, Field{Key: "error"}, Err(nil))
	assert.Equal(t, "boom", Err(errors.New("boom")).Value)
	assert.Equal(t, "1.5s", Latency(1500*time.Millisecond).Value)
	assert.Equal(t, "UNKNOWN", Level(9).String())
}
