package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "INFO", "json")

	orderID := uuid.New()
	WithRobot(WithOrderID(logger, orderID), "blender-1").Info("order submitted")
	logger.Debug("hidden")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["order_id"] != orderID.String() {
		t.Errorf("order_id = %v, want %s", entry["order_id"], orderID)
	}
	if entry["robot"] != "blender-1" {
		t.Errorf("robot = %v, want blender-1", entry["robot"])
	}
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "DEBUG", "text")
	logger.Debug("visible")

	if !strings.Contains(buf.String(), "msg=visible") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestWithToken_Truncates(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "INFO", "text")

	token := "0123456789abcdef"
	WithToken(logger, token).Info("completion")

	if strings.Contains(buf.String(), token) {
		t.Errorf("full token leaked to log: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "01234567") {
		t.Errorf("token prefix missing: %q", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)

	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger")
	}
}
