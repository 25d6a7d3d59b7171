package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FormatSelection(t *testing.T) {
	tests := []struct {
		name        string
		format      string
		environment string
		wantJSON    bool
	}{
		{name: "explicit json", format: "json", wantJSON: true},
		{name: "explicit pretty", format: "pretty", wantJSON: false},
		{name: "production defaults to json", environment: "production", wantJSON: true},
		{name: "development defaults to pretty", environment: "development", wantJSON: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Writer: &buf, Format: tt.format, Environment: tt.environment})
			log.Info("hello", "book", "bk-123")

			out := buf.String()
			require.NotEmpty(t, out)
			if tt.wantJSON {
				assert.True(t, strings.HasPrefix(out, "{"), "expected JSON output, got %q", out)
			} else {
				assert.Contains(t, out, "hello")
				assert.Contains(t, out, "book=bk-123")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), "level %q", tt.input)
	}
}

func TestPrettyHandler_ComponentLeadsLine(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: "pretty"})

	log.WithComponent("transport").Info("entry advanced", "section", 2, "entry", 7)

	out := buf.String()
	assert.Contains(t, out, "[transport]")
	assert.Contains(t, out, "section=2")
	// Component must not be duplicated into the key=value tail.
	assert.NotContains(t, out, "component=")
}

func TestPrettyHandler_Enabled(t *testing.T) {
	level := slog.LevelWarn
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: level})

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}
