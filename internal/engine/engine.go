// Package engine implements the MeddyPal recommendation pipeline: signal extraction,
// intent classification, scoring, recommendation generation and response assembly.
// Every stage is a pure function of its inputs and the configured rule table, so an
// Engine is safe for concurrent use.
package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Engine struct {
	rules    *Rules
	compiled []compiledRule
	now      func() time.Time
	maxRecs  int
	log      zerolog.Logger
}

type Option func(*Engine)

// WithClock replaces time.Now. Tests use it to freeze the activity windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMaxRecommendations sets the default number of suggestions per response.
func WithMaxRecommendations(n int) Option {
	return func(e *Engine) {
		e.maxRecs = normalizeLimit(n)
	}
}

// WithLogger sets the logger for rule evaluation warnings. The default discards.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

func New(rules *Rules, opts ...Option) (*Engine, error) {
	if rules == nil {
		return nil, fmt.Errorf("engine: rules are required")
	}
	compiled, err := compileRules(rules.Recommendations)
	if err != nil {
		return nil, fmt.Errorf("engine: compile templates: %w", err)
	}

	e := &Engine{
		rules:    rules,
		compiled: compiled,
		now:      time.Now,
		maxRecs:  DefaultMaxRecommendations,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Rules() *Rules {
	return e.rules
}

// Respond runs the full pipeline for one chat message.
func (e *Engine) Respond(req Request) Response {
	now := req.At
	if now.IsZero() {
		now = e.now()
	}

	signals := e.rules.ExtractSignals(req.FreeText, req.Profile, req.Events, now)
	intent := e.rules.ClassifyIntent(req.FreeText)
	scores := e.score(req.Profile, signals)
	recs := e.Generate(intent, signals, scores)

	limit := req.MaxRecommendations
	if limit <= 0 {
		limit = e.maxRecs
	}
	resp := e.rules.Assemble(intent, req.FreeText, recs, limit)
	resp.Scores = scores
	return resp
}

type Insights struct {
	Scores          Scores           `json:"scores"`
	RecentEvents    map[string]int   `json:"recentEvents"`
	TrailingEvents  map[string]int   `json:"trailingEvents"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Insights computes both scores and the proactive recommendations that apply without
// any chat message.
func (e *Engine) Insights(profile *UserProfile, events []ActivityEvent, limit int) Insights {
	now := e.now()
	signals := e.rules.ExtractSignals("", profile, events, now)
	scores := e.score(profile, signals)
	recs := e.Generate(IntentGeneralInquiry, signals, scores)
	if limit <= 0 {
		limit = e.maxRecs
	}
	return Insights{
		Scores:          scores,
		RecentEvents:    signals.Recent,
		TrailingEvents:  signals.Trailing,
		Recommendations: recs[:min(len(recs), normalizeLimit(limit))],
	}
}

type SymptomReport struct {
	Categories []CategorySignal `json:"categories"`
	RedFlags   []string         `json:"redFlags"`
	Specialist string           `json:"specialist"`
	Urgency    Urgency          `json:"urgency"`
	Advice     string           `json:"advice"`
}

// symptomConfidence is the share of a category's keywords that must match before the
// checker treats the category as more than a passing mention.
const symptomConfidence = 0.25

// CheckSymptoms is the rule-based symptom checker: keyword categories, red flags and
// a suggested specialist for the strongest category.
func (e *Engine) CheckSymptoms(symptoms []string) SymptomReport {
	text := strings.Join(symptoms, ". ")
	signals := e.rules.ExtractSignals(text, nil, nil, e.now())

	report := SymptomReport{
		Categories: signals.Symptoms,
		RedFlags:   signals.RedFlags,
		Specialist: defaultSpecialist,
		Urgency:    UrgencyLow,
	}
	if top, ok := signals.Top(); ok {
		report.Specialist = top.Specialist
		if top.Confidence >= symptomConfidence || len(signals.Symptoms) > 1 {
			report.Urgency = UrgencyMedium
		}
	}
	if signals.HasRedFlag() {
		report.Urgency = UrgencyHigh
	}
	report.Advice = e.rules.Templates.SymptomAdvice[report.Urgency]
	if report.Advice == "" {
		report.Advice = e.rules.Templates.Fallback
	}
	return report
}

func (e *Engine) score(profile *UserProfile, signals SignalSet) Scores {
	return Scores{
		Engagement:          e.rules.EngagementScore(signals),
		ProfileCompleteness: e.rules.ProfileCompleteness(profile),
	}
}
