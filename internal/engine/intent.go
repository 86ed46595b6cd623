package engine

import "strings"

// ClassifyIntent walks the intent rules in order and returns the first intent with a
// keyword contained in text. Order matters: symptom words must be checked before
// generic booking words like "doctor".
func (r *Rules) ClassifyIntent(text string) Intent {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return IntentGeneralInquiry
	}
	for _, rule := range r.IntentRules {
		if containsAny(lower, rule.Keywords) {
			return rule.Intent
		}
	}
	return IntentGeneralInquiry
}

// isEducational reports whether a general inquiry reads like a health question.
func (r *Rules) isEducational(text string) bool {
	return containsAny(strings.ToLower(text), r.Templates.EducationalCues)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
