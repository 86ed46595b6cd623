package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWritesJSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "production", "info")
	log.Info().Str("component", "test").Msg("hello")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if line["message"] != "hello" || line["component"] != "test" {
		t.Fatalf("unexpected fields: %v", line)
	}
}

func TestNewLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "production", "warn")
	log.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}

	if got := newWithWriter(&buf, "production", "nonsense").GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", got)
	}
}
