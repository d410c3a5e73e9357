package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/brightfield-io/gomodbus/common"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithLevel(common.LevelWarn), WithWriter(&buf))
	ctx := context.Background()

	logger.Info(ctx, "should not appear")
	logger.Debug(ctx, "should not appear either")
	logger.Warn(ctx, "warn message")
	logger.Error(ctx, "error message")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("expected messages below the configured level to be filtered, got: %s", out)
	}
	if !strings.Contains(out, "warn message") {
		t.Errorf("expected warn message in output, got: %s", out)
	}
	if !strings.Contains(out, "error message") {
		t.Errorf("expected error message in output, got: %s", out)
	}
}

func TestLogger_GetSetLevel(t *testing.T) {
	logger := NewLogger(WithLevel(common.LevelInfo))
	if logger.GetLevel() != common.LevelInfo {
		t.Fatalf("expected initial level Info, got %v", logger.GetLevel())
	}

	logger.SetLevel(common.LevelDebug)
	if logger.GetLevel() != common.LevelDebug {
		t.Fatalf("expected level Debug after SetLevel, got %v", logger.GetLevel())
	}
}

func TestLogger_WithFieldsMergesAndPreservesLevel(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(WithLevel(common.LevelInfo), WithWriter(&buf), WithFields(map[string]interface{}{"component": "test"}))

	derived := base.WithFields(map[string]interface{}{"unit": 1})
	derived.Info(context.Background(), "hello")

	out := buf.String()
	if !strings.Contains(out, "component") || !strings.Contains(out, "unit") {
		t.Errorf("expected both base and derived fields in output, got: %s", out)
	}
	if derived.GetLevel() != common.LevelInfo {
		t.Errorf("expected derived logger to preserve level, got %v", derived.GetLevel())
	}
}

func TestLogger_HexdumpRespectsTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithLevel(common.LevelInfo), WithWriter(&buf))
	logger.Hexdump(context.Background(), []byte{0x01, 0x02, 0x03})
	if buf.Len() != 0 {
		t.Errorf("expected Hexdump to be suppressed above Trace level, got: %s", buf.String())
	}

	logger.SetLevel(common.LevelTrace)
	logger.Hexdump(context.Background(), []byte{0x01, 0x02, 0x03})
	if !strings.Contains(buf.String(), "offset") {
		t.Errorf("expected hexdump header in output, got: %s", buf.String())
	}
}

func TestLogger_Sync(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithWriter(&buf))
	if err := logger.Sync(); err != nil {
		t.Errorf("expected Sync to succeed for a buffer-backed logger, got: %v", err)
	}
}
