package engine

import "strings"

// EngagementScore is the activity-based health score:
//
//	base + min(recent*perEvent, cap) + distinctCategories*perCategory + consistencyBonus
//
// clamped to [0,100]. Only events inside the recent window count.
func (r *Rules) EngagementScore(signals SignalSet) int {
	sc := r.Scoring

	recent := signals.RecentTotal()
	score := sc.Base
	score += min(recent*sc.PerRecentEvent, sc.RecentEventCap)

	distinct := 0
	for _, n := range signals.Recent {
		if n > 0 {
			distinct++
		}
	}
	score += distinct * sc.PerCategory

	if sc.ConsistencyThreshold > 0 && recent >= sc.ConsistencyThreshold {
		score += sc.ConsistencyBonus
	}
	return clamp(score, 0, 100)
}

// ProfileCompleteness is the weighted share of filled profile fields in [0,100].
func (r *Rules) ProfileCompleteness(p *UserProfile) int {
	if p == nil {
		return 0
	}
	score := 0
	for _, w := range r.Completeness {
		if fieldFilled(p, w.Field) {
			score += w.Weight
		}
	}
	return clamp(score, 0, 100)
}

func fieldFilled(p *UserProfile, field string) bool {
	switch field {
	case "full_name":
		return strings.TrimSpace(p.FullName) != ""
	case "age":
		return p.Age != nil && *p.Age > 0
	case "gender":
		return strings.TrimSpace(p.Gender) != ""
	case "location":
		return strings.TrimSpace(p.Location) != ""
	case "conditions":
		return countNonBlank(p.Conditions) > 0
	case "allergies":
		return countNonBlank(p.Allergies) > 0
	case "medications":
		return countNonBlank(p.Medications) > 0
	case "emergency_contact":
		return strings.TrimSpace(p.EmergencyContact) != ""
	case "insurance":
		return p.hasInsuranceData()
	default:
		return false
	}
}

// Priority is a static lookup into the rule table, clamped to [0,10]. Unknown ids rank 0.
func (r *Rules) Priority(ruleID string) int {
	for _, rule := range r.Recommendations {
		if rule.ID == ruleID {
			return clamp(rule.Priority, 0, 10)
		}
	}
	return 0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
