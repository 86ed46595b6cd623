package engine

import "strings"

const (
	DefaultMaxRecommendations = 3
	MaxRecommendations        = 10
)

// Assemble turns ranked recommendations into the response sent to the caller. The
// slice is cut to limit (defaulted and clamped) and the overall urgency is the highest
// urgency among the kept recommendations.
func (r *Rules) Assemble(intent Intent, text string, recs []Recommendation, limit int) Response {
	limit = normalizeLimit(limit)

	selected := []Recommendation{}
	if len(recs) > 0 {
		selected = recs[:min(len(recs), limit)]
	}

	urgency := UrgencyLow
	for _, rec := range selected {
		urgency = maxUrgency(urgency, rec.Urgency)
	}

	resp := Response{
		Content:          r.content(intent, len(selected) > 0),
		Urgency:          urgency,
		SuggestedActions: selected,
		Intent:           intent,
	}

	switch {
	case urgency.Rank() >= UrgencyHigh.Rank():
		resp.Type = ResponseUrgentAction
		if intent == IntentHealthConcern && r.Templates.UrgentPreface != "" {
			resp.Content = r.Templates.UrgentPreface + " " + resp.Content
		}
	case len(selected) > 0:
		resp.Type = ResponseServiceRecommendation
	case intent == IntentGeneralInquiry && r.isEducational(text) && r.Templates.Educational != "":
		resp.Type = ResponseEducational
		resp.Content = r.Templates.Educational
	default:
		resp.Type = ResponseConversation
	}
	return resp
}

func (r *Rules) content(intent Intent, hasSuggestions bool) string {
	if !hasSuggestions {
		return r.Templates.Fallback
	}
	if tmpl := strings.TrimSpace(r.Templates.Intents[intent]); tmpl != "" {
		return tmpl
	}
	return r.Templates.Fallback
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultMaxRecommendations
	}
	return min(limit, MaxRecommendations)
}
