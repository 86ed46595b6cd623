package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"text/template"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultRulesLoad(t *testing.T) {
	rules, err := DefaultRules()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules.Version == "" {
		t.Fatal("expected a rules version")
	}
	if len(rules.IntentRules) != 5 {
		t.Fatalf("expected 5 ordered intent rules, got %d", len(rules.IntentRules))
	}
	if rules.IntentRules[0].Intent != IntentHealthConcern {
		t.Fatalf("expected health_concern to be checked first, got %s", rules.IntentRules[0].Intent)
	}
	for _, in := range Intents {
		if rules.Templates.Intents[in] == "" {
			t.Errorf("missing content template for %s", in)
		}
	}
}

func TestLoadRulesFromFile(t *testing.T) {
	custom := strings.Replace(string(defaultRulesYAML), `version: "2026.10.1"`, `version: "test-1"`, 1)
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(custom), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules.Version != "test-1" {
		t.Fatalf("expected version test-1, got %s", rules.Version)
	}

	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseRulesRejectsInvalidTables(t *testing.T) {
	base := string(defaultRulesYAML)

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"malformed yaml", "version: [", "parse rules"},
		{"missing version", strings.Replace(base, `version: "2026.10.1"`, `version: ""`, 1), "invalid rules"},
		{"priority out of range", strings.Replace(base, "priority: 10", "priority: 11", 1), "invalid rules"},
		{"bad urgency", strings.Replace(base, "urgency: critical", "urgency: extreme", 1), "invalid rules"},
		{"duplicate id", strings.Replace(base, "id: insurance_gap", "id: urgent_insurance", 1), "duplicate recommendation id"},
		{"weights do not sum to 100", strings.Replace(base, "{field: gender, weight: 5}", "{field: gender, weight: 6}", 1), "sum to 101"},
		{"unknown intent", strings.Replace(base, "intents: [lab_test]", "intents: [surgery]", 1), "unknown intent"},
		{"bad template", strings.Replace(base, `"Consult a {{.Specialist}}"`, `"Consult a {{.Specialist"`, 1), "invalid rules"},
		{"misspelled template field", strings.Replace(base, `"Consult a {{.Specialist}}"`, `"Consult a {{.Specialst}}"`, 1), "Specialst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseRulesLowercasesKeywords(t *testing.T) {
	yaml := strings.Replace(string(defaultRulesYAML), "keywords: [rash, itch,", "keywords: [RASH, Itch,", 1)
	rules, err := ParseRules([]byte(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	signals := rules.ExtractSignals("a rash that will not stop", nil, nil, time.Now())
	top, ok := signals.Top()
	if !ok || top.Category != "dermatological" {
		t.Fatalf("expected dermatological match, got %+v", signals.Symptoms)
	}
}

func TestNewRejectsTemplatesThatFailToRender(t *testing.T) {
	rules, err := DefaultRules()
	if err != nil {
		t.Fatalf("load default rules: %v", err)
	}
	rules.Recommendations[0].Label = "Consult a {{.Specialst}}"

	if _, err := New(rules); err == nil || !strings.Contains(err.Error(), rules.Recommendations[0].ID) {
		t.Fatalf("expected compile error naming %q, got %v", rules.Recommendations[0].ID, err)
	}
}

func TestRenderLogsFallback(t *testing.T) {
	var buf bytes.Buffer
	e := newTestEngine(t)
	WithLogger(zerolog.New(&buf))(e)

	tmpl := template.Must(template.New("broken.label").Parse("Consult a {{.Missing}}"))
	if got := e.render(tmpl, "Consult a {{.Missing}}", templateData{}); got != "Consult a {{.Missing}}" {
		t.Fatalf("expected raw text fallback, got %q", got)
	}
	if !strings.Contains(buf.String(), "template render failed") || !strings.Contains(buf.String(), "broken.label") {
		t.Fatalf("expected fallback to be logged, got %s", buf.String())
	}
}
