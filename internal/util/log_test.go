package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevel(t *testing.T) {
	logger := NewLogger("debug")
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}

	logger = NewLogger("invalid")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", logger.GetLevel())
	}
}

func TestNewLoggerToWritesToSink(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info")
	logger.Info().Str("symbol", "BTC").Msg("price update")

	if !strings.Contains(buf.String(), "price update") {
		t.Fatalf("expected log output, got %q", buf.String())
	}

	buf.Reset()
	logger.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug output leaked at info level: %q", buf.String())
	}
}
