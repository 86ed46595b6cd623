package engine

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rules is the versioned configuration the engine evaluates. It is loaded once at
// startup and never mutated afterwards.
type Rules struct {
	Version         string               `yaml:"version" validate:"required"`
	Categories      []Category           `yaml:"categories" validate:"required,min=1,dive"`
	RedFlags        []string             `yaml:"red_flags"`
	IntentRules     []IntentRule         `yaml:"intent_rules" validate:"required,min=1,dive"`
	Scoring         ScoringConfig        `yaml:"scoring"`
	Completeness    []CompletenessWeight `yaml:"profile_completeness" validate:"dive"`
	Recommendations []RecommendationRule `yaml:"recommendations" validate:"dive"`
	Templates       Templates            `yaml:"templates"`
}

type Category struct {
	Name       string   `yaml:"name" validate:"required"`
	Specialist string   `yaml:"specialist"`
	Keywords   []string `yaml:"keywords" validate:"required,min=1"`
}

type IntentRule struct {
	Intent   Intent   `yaml:"intent" validate:"required,oneof=health_concern book_appointment lab_test medication insurance"`
	Keywords []string `yaml:"keywords" validate:"required,min=1"`
}

type ScoringConfig struct {
	Base                 int `yaml:"base" validate:"min=0,max=100"`
	PerRecentEvent       int `yaml:"per_recent_event" validate:"min=0"`
	RecentEventCap       int `yaml:"recent_event_cap" validate:"min=0"`
	PerCategory          int `yaml:"per_category" validate:"min=0"`
	ConsistencyBonus     int `yaml:"consistency_bonus" validate:"min=0"`
	ConsistencyThreshold int `yaml:"consistency_threshold" validate:"min=0"`
	RecentWindowDays     int `yaml:"recent_window_days" validate:"required,min=1"`
	TrailingWindowDays   int `yaml:"trailing_window_days" validate:"required,gtefield=RecentWindowDays"`
}

type CompletenessWeight struct {
	Field  string `yaml:"field" validate:"required,oneof=full_name age gender location conditions allergies medications emergency_contact insurance"`
	Weight int    `yaml:"weight" validate:"min=0,max=100"`
}

type RecommendationRule struct {
	ID             string     `yaml:"id" validate:"required"`
	Label          string     `yaml:"label" validate:"required"`
	Description    string     `yaml:"description"`
	ServiceType    string     `yaml:"service_type" validate:"required"`
	Priority       int        `yaml:"priority" validate:"min=0,max=10"`
	Urgency        Urgency    `yaml:"urgency" validate:"required,oneof=low medium high critical"`
	RedFlagUrgency Urgency    `yaml:"red_flag_urgency" validate:"omitempty,oneof=low medium high critical"`
	EstimatedCost  string     `yaml:"estimated_cost"`
	EstimatedTime  string     `yaml:"estimated_time"`
	NextSteps      []string   `yaml:"next_steps"`
	When           Conditions `yaml:"when"`
}

// Conditions are AND-ed. Zero values mean "no constraint".
type Conditions struct {
	Intents             []Intent `yaml:"intents"`
	RequiresProfile     bool     `yaml:"requires_profile"`
	Uninsured           bool     `yaml:"uninsured"`
	RequiresConditions  bool     `yaml:"requires_conditions"`
	CompletenessBelow   *int     `yaml:"completeness_below"`
	CompletenessAtLeast *int     `yaml:"completeness_at_least"`
	EngagementAbove     *int     `yaml:"engagement_above"`
	RecentEventsBelow   *int     `yaml:"recent_events_below"`
	MinMedications      int      `yaml:"min_medications"`
	AgeAtLeast          *int     `yaml:"age_at_least"`
	RecentCategories    []string `yaml:"recent_categories"`
	NoRecentCategories  []string `yaml:"no_recent_categories"`
}

type Templates struct {
	Fallback        string             `yaml:"fallback" validate:"required"`
	UrgentPreface   string             `yaml:"urgent_preface"`
	Educational     string             `yaml:"educational"`
	EducationalCues []string           `yaml:"educational_cues"`
	Intents         map[Intent]string  `yaml:"intents"`
	SymptomAdvice   map[Urgency]string `yaml:"symptom_advice"`
}

// DefaultRules returns the rule table compiled into the binary.
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultRulesYAML)
}

// LoadRules reads a rule table from path, or the embedded default when path is empty.
func LoadRules(path string) (*Rules, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.normalize()
	return &r, nil
}

func (r *Rules) Validate() error {
	if err := validator.New().Struct(r); err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}

	seen := make(map[string]bool, len(r.Recommendations))
	for _, rule := range r.Recommendations {
		if seen[rule.ID] {
			return fmt.Errorf("invalid rules: duplicate recommendation id %q", rule.ID)
		}
		seen[rule.ID] = true

		for _, in := range rule.When.Intents {
			if !validIntent(in) {
				return fmt.Errorf("invalid rules: recommendation %q: unknown intent %q", rule.ID, in)
			}
		}
		t, err := template.New(rule.ID).Option("missingkey=error").Parse(rule.Label + rule.Description)
		if err != nil {
			return fmt.Errorf("invalid rules: recommendation %q: %w", rule.ID, err)
		}
		if err := t.Execute(io.Discard, templateData{}); err != nil {
			return fmt.Errorf("invalid rules: recommendation %q: %w", rule.ID, err)
		}
	}

	total := 0
	for _, w := range r.Completeness {
		total += w.Weight
	}
	if len(r.Completeness) > 0 && total != 100 {
		return fmt.Errorf("invalid rules: profile completeness weights sum to %d, want 100", total)
	}
	return nil
}

func (r *Rules) normalize() {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(s); strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	}

	for i := range r.Categories {
		r.Categories[i].Keywords = lower(r.Categories[i].Keywords)
		if r.Categories[i].Specialist == "" {
			r.Categories[i].Specialist = defaultSpecialist
		}
	}
	for i := range r.IntentRules {
		r.IntentRules[i].Keywords = lower(r.IntentRules[i].Keywords)
	}
	r.RedFlags = lower(r.RedFlags)
	r.Templates.EducationalCues = lower(r.Templates.EducationalCues)
}

func validIntent(in Intent) bool {
	for _, known := range Intents {
		if in == known {
			return true
		}
	}
	return false
}
