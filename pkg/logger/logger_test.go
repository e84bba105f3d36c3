package logger

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cafenote/pkg/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer) *zerologLogger {
	zlog := zerolog.New(buf).Level(zerolog.DebugLevel)
	return &zerologLogger{logger: &zlog, fields: make(map[string]interface{})}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level json", cfg: &config.LoggingConfig{Level: "debug", Format: "json"}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "chatty"}, wantErr: true},
		{
			name: "file output",
			cfg: &config.LoggingConfig{
				Level: "info",
				File:  filepath.Join(t.TempDir(), "logs", "cafenote.log"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewWithWriter(tt.cfg, &bytes.Buffer{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNewWritesJSONAndFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "cafenote.log")

	l, err := NewWithWriter(&config.LoggingConfig{Level: "info", Format: "json", File: path}, &buf)
	require.NoError(t, err)

	l.WithField("cafe_id", "123").Info("crawl started")
	l.Debug("suppressed at info")

	assert.Contains(t, buf.String(), `"cafe_id":"123"`)
	assert.Contains(t, buf.String(), `"app":"cafenote"`)
	assert.NotContains(t, buf.String(), "suppressed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "crawl started")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"invalid", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	base := newBufferLogger(&buf)

	child := base.WithField("field1", "value1").WithFields(map[string]interface{}{
		"field2": 2,
		"field3": true,
	})
	child.InfoWithFields("chained", map[string]interface{}{"elapsed": 1500 * time.Millisecond})

	out := buf.String()
	assert.Contains(t, out, `"field1":"value1"`)
	assert.Contains(t, out, `"field2":2`)
	assert.Contains(t, out, `"field3":true`)
	assert.Contains(t, out, `"elapsed"`)

	// parent is untouched
	buf.Reset()
	base.Info("plain")
	assert.NotContains(t, buf.String(), "field1")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	assert.Same(t, l, l.WithError(nil))

	l.WithError(errors.New("boom")).Error("send failed")
	assert.Contains(t, buf.String(), `"error":"boom"`)
	assert.Contains(t, buf.String(), "send failed")
}

func TestHelpers(t *testing.T) {
	tl := NewTestLogger()

	LogRequest(tl, "GET", "/articles", 200, 10*time.Millisecond)
	LogRequest(tl, "GET", "/articles", 404, 10*time.Millisecond)
	LogRequest(tl, "POST", "/send", 503, 10*time.Millisecond)
	LogDispatch(tl, "abc123", "nick", 3, nil)
	LogDispatch(tl, "def456", "other", 3, errors.New("rejected"))

	assert.Len(t, tl.GetMessagesByLevel("DEBUG"), 1)
	assert.Len(t, tl.GetMessagesByLevel("ERROR"), 1)

	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 2)
	assert.Equal(t, "Note dispatch failed", warns[1].Message)
	assert.Equal(t, "def456", warns[1].Fields["member_key"])
	assert.EqualError(t, warns[1].Error, "rejected")

	assert.True(t, tl.HasMessage("Note dispatched"))
}

func TestContextLogger(t *testing.T) {
	tl := NewTestLogger()
	ctx := IntoContext(context.Background(), tl)

	FromContext(ctx, nil).Info("from context")
	assert.True(t, tl.HasMessage("from context"))

	fallback := NewTestLogger()
	FromContext(context.Background(), fallback).Info("from fallback")
	assert.True(t, fallback.HasMessage("from fallback"))
	assert.NotNil(t, FromContext(context.Background(), nil))
}

func TestTestLoggerSharesSink(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("a", 1).WithError(errors.New("x")).Warn("child")
	tl.Info("parent")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, 1, msgs[0].Fields["a"])
	assert.True(t, strings.Contains(tl.String(), "error=x"))

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}
