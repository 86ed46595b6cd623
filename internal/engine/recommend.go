package engine

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/template"
)

type templateData struct {
	Category        string
	Specialist      string
	Age             string
	ConditionCount  int
	MedicationCount int
	Completeness    int
	Engagement      int
}

type compiledRule struct {
	RecommendationRule
	label       *template.Template
	description *template.Template
}

func compileRules(rules []RecommendationRule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		label, err := template.New(rule.ID + ".label").Option("missingkey=error").Parse(rule.Label)
		if err != nil {
			return nil, err
		}
		desc, err := template.New(rule.ID + ".description").Option("missingkey=error").Parse(rule.Description)
		if err != nil {
			return nil, err
		}
		for _, t := range []*template.Template{label, desc} {
			if err := t.Execute(io.Discard, templateData{}); err != nil {
				return nil, fmt.Errorf("recommendation %q: %w", rule.ID, err)
			}
		}
		out = append(out, compiledRule{RecommendationRule: rule, label: label, description: desc})
	}
	return out, nil
}

// Generate evaluates every recommendation rule against the request context and
// returns the matches ordered by descending priority. Ties keep rule-table order.
// Each rule contributes at most one recommendation.
func (e *Engine) Generate(intent Intent, signals SignalSet, scores Scores) []Recommendation {
	data := newTemplateData(signals, scores)

	out := []Recommendation{}
	fired := make(map[string]bool, len(e.compiled))
	for _, rule := range e.compiled {
		if fired[rule.ID] || !rule.When.matches(intent, signals, scores) {
			continue
		}
		fired[rule.ID] = true

		urgency := rule.Urgency
		if rule.RedFlagUrgency != "" && signals.HasRedFlag() {
			urgency = maxUrgency(urgency, rule.RedFlagUrgency)
		}

		steps := make([]string, len(rule.NextSteps))
		copy(steps, rule.NextSteps)

		out = append(out, Recommendation{
			ID:            rule.ID,
			Label:         e.render(rule.label, rule.Label, data),
			Description:   e.render(rule.description, rule.Description, data),
			ServiceType:   rule.ServiceType,
			Priority:      e.rules.Priority(rule.ID),
			Urgency:       urgency,
			EstimatedCost: rule.EstimatedCost,
			EstimatedTime: rule.EstimatedTime,
			NextSteps:     steps,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

func (c Conditions) matches(intent Intent, s SignalSet, sc Scores) bool {
	if len(c.Intents) > 0 && !containsIntent(c.Intents, intent) {
		return false
	}
	if c.RequiresProfile && !s.Profile.OnRecord {
		return false
	}
	if c.Uninsured && !s.Profile.Uninsured {
		return false
	}
	if c.RequiresConditions && s.Profile.Conditions == 0 {
		return false
	}
	if c.CompletenessBelow != nil && sc.ProfileCompleteness >= *c.CompletenessBelow {
		return false
	}
	if c.CompletenessAtLeast != nil && sc.ProfileCompleteness < *c.CompletenessAtLeast {
		return false
	}
	if c.EngagementAbove != nil && sc.Engagement <= *c.EngagementAbove {
		return false
	}
	if c.RecentEventsBelow != nil && s.RecentTotal() >= *c.RecentEventsBelow {
		return false
	}
	if c.MinMedications > 0 && s.Profile.Medications < c.MinMedications {
		return false
	}
	if c.AgeAtLeast != nil && (s.Profile.Age == nil || *s.Profile.Age < *c.AgeAtLeast) {
		return false
	}
	for _, cat := range c.RecentCategories {
		if s.Recent[cat] == 0 {
			return false
		}
	}
	for _, cat := range c.NoRecentCategories {
		if s.Trailing[cat] > 0 {
			return false
		}
	}
	return true
}

func newTemplateData(s SignalSet, sc Scores) templateData {
	d := templateData{
		Category:        "reported",
		Specialist:      defaultSpecialist,
		Age:             "your age",
		ConditionCount:  s.Profile.Conditions,
		MedicationCount: s.Profile.Medications,
		Completeness:    sc.ProfileCompleteness,
		Engagement:      sc.Engagement,
	}
	if top, ok := s.Top(); ok {
		d.Category = humanize(top.Category)
		d.Specialist = top.Specialist
	}
	if s.Profile.Age != nil {
		d.Age = strconv.Itoa(*s.Profile.Age)
	}
	return d
}

// render falls back to the raw template text if execution fails.
func (e *Engine) render(t *template.Template, raw string, data templateData) string {
	if t == nil {
		return raw
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		e.log.Warn().Err(err).Str("template", t.Name()).Msg("template render failed, using raw text")
		return raw
	}
	return buf.String()
}

func humanize(category string) string {
	return strings.ReplaceAll(category, "_", " ")
}

func containsIntent(list []Intent, in Intent) bool {
	for _, v := range list {
		if v == in {
			return true
		}
	}
	return false
}
