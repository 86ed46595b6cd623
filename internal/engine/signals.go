package engine

import (
	"sort"
	"strings"
	"time"
)

const defaultSpecialist = "General Practitioner"

type CategorySignal struct {
	Category   string   `json:"category"`
	Specialist string   `json:"specialist"`
	Matches    int      `json:"matches"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords"`
}

// SignalSet is computed fresh for every request and never persisted.
type SignalSet struct {
	// Symptoms holds only categories with at least one match, strongest first.
	Symptoms []CategorySignal `json:"symptoms"`
	RedFlags []string         `json:"redFlags"`
	Recent   map[string]int   `json:"recent"`
	Trailing map[string]int   `json:"trailing"`
	Profile  ProfileSignal    `json:"profile"`
}

type ProfileSignal struct {
	OnRecord    bool `json:"onRecord"`
	Uninsured   bool `json:"uninsured"`
	Age         *int `json:"age,omitempty"`
	Conditions  int  `json:"conditions"`
	Allergies   int  `json:"allergies"`
	Medications int  `json:"medications"`
}

// RecentTotal is the number of events inside the recent window.
func (s SignalSet) RecentTotal() int {
	return sumCounts(s.Recent)
}

func (s SignalSet) TrailingTotal() int {
	return sumCounts(s.Trailing)
}

// Top returns the strongest symptom category, if any.
func (s SignalSet) Top() (CategorySignal, bool) {
	if len(s.Symptoms) == 0 {
		return CategorySignal{}, false
	}
	return s.Symptoms[0], true
}

func (s SignalSet) HasRedFlag() bool {
	return len(s.RedFlags) > 0
}

// ExtractSignals turns free text and activity rows into request-scoped signals.
// A nil profile or nil events are treated as empty.
func (r *Rules) ExtractSignals(text string, profile *UserProfile, events []ActivityEvent, now time.Time) SignalSet {
	lower := strings.ToLower(text)

	set := SignalSet{
		Symptoms: []CategorySignal{},
		RedFlags: []string{},
		Recent:   map[string]int{},
		Trailing: map[string]int{},
		Profile:  profileSignal(profile),
	}

	if strings.TrimSpace(lower) != "" {
		for _, cat := range r.Categories {
			var hits []string
			for _, kw := range cat.Keywords {
				if strings.Contains(lower, kw) {
					hits = append(hits, kw)
				}
			}
			if len(hits) == 0 {
				continue
			}
			set.Symptoms = append(set.Symptoms, CategorySignal{
				Category:   cat.Name,
				Specialist: cat.Specialist,
				Matches:    len(hits),
				Confidence: float64(len(hits)) / float64(len(cat.Keywords)),
				Keywords:   hits,
			})
		}
		// Table order breaks confidence ties.
		sort.SliceStable(set.Symptoms, func(i, j int) bool {
			return set.Symptoms[i].Confidence > set.Symptoms[j].Confidence
		})

		for _, flag := range r.RedFlags {
			if strings.Contains(lower, flag) {
				set.RedFlags = append(set.RedFlags, flag)
			}
		}
	}

	recentFrom := now.AddDate(0, 0, -r.Scoring.RecentWindowDays)
	trailingFrom := now.AddDate(0, 0, -r.Scoring.TrailingWindowDays)
	for _, e := range events {
		if e.Category == "" || e.OccurredAt.IsZero() || e.OccurredAt.After(now) {
			continue
		}
		if e.OccurredAt.Before(trailingFrom) {
			continue
		}
		set.Trailing[e.Category]++
		if !e.OccurredAt.Before(recentFrom) {
			set.Recent[e.Category]++
		}
	}

	return set
}

func profileSignal(p *UserProfile) ProfileSignal {
	if p.IsZero() {
		return ProfileSignal{Uninsured: true}
	}
	return ProfileSignal{
		OnRecord:    true,
		Uninsured:   !p.Insured(),
		Age:         p.Age,
		Conditions:  countNonBlank(p.Conditions),
		Allergies:   countNonBlank(p.Allergies),
		Medications: countNonBlank(p.Medications),
	}
}

func countNonBlank(values []string) int {
	n := 0
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

func sumCounts(m map[string]int) int {
	total := 0
	for _, n := range m {
		total += n
	}
	return total
}
