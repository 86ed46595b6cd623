package api

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skufu/MeddyPal/internal/engine"
)

// recommendRequest is the stateless pipeline input. Out-of-range values are defaulted
// by the engine, so only sizes are bounded here.
type recommendRequest struct {
	FreeText           string                 `json:"freeText" validate:"max=4000"`
	Profile            *engine.UserProfile    `json:"profile"`
	Events             []engine.ActivityEvent `json:"events" validate:"max=500"`
	MaxRecommendations int                    `json:"maxRecommendations"`
}

type chatRequest struct {
	Message            string `json:"message" validate:"required,max=2000"`
	MaxRecommendations int    `json:"maxRecommendations" validate:"omitempty,min=1,max=10"`
}

type chatResponse struct {
	engine.Response
	Source string `json:"source"`
}

type symptomCheckRequest struct {
	Symptoms []string `json:"symptoms" validate:"required,min=1,max=20,dive,required,max=200"`
}

type profileRequest struct {
	FullName              string   `json:"fullName" validate:"max=200"`
	Age                   *int     `json:"age" validate:"omitempty,min=0,max=130"`
	Gender                string   `json:"gender" validate:"max=50"`
	Location              string   `json:"location" validate:"max=200"`
	Conditions            []string `json:"conditions" validate:"max=50,dive,max=200"`
	Allergies             []string `json:"allergies" validate:"max=50,dive,max=200"`
	Medications           []string `json:"medications" validate:"max=50,dive,max=200"`
	EmergencyContact      string   `json:"emergencyContact" validate:"max=200"`
	HasInsurance          *bool    `json:"hasInsurance"`
	InsuranceProvider     string   `json:"insuranceProvider" validate:"max=200"`
	InsurancePolicyNumber string   `json:"insurancePolicyNumber" validate:"max=100"`
}

func (r profileRequest) toProfile(userID uuid.UUID) *engine.UserProfile {
	return &engine.UserProfile{
		UserID:                userID,
		FullName:              strings.TrimSpace(r.FullName),
		Age:                   r.Age,
		Gender:                strings.TrimSpace(r.Gender),
		Location:              strings.TrimSpace(r.Location),
		Conditions:            cleanList(r.Conditions),
		Allergies:             cleanList(r.Allergies),
		Medications:           cleanList(r.Medications),
		EmergencyContact:      strings.TrimSpace(r.EmergencyContact),
		HasInsurance:          r.HasInsurance,
		InsuranceProvider:     strings.TrimSpace(r.InsuranceProvider),
		InsurancePolicyNumber: strings.TrimSpace(r.InsurancePolicyNumber),
	}
}

type profileResponse struct {
	Profile             *engine.UserProfile `json:"profile"`
	ProfileCompleteness int                 `json:"profileCompletenessScore"`
}

type eventRequest struct {
	Category    string     `json:"category" validate:"required,oneof=consultation lab_order medication_order appointment insurance symptom_check"`
	Description string     `json:"description" validate:"max=500"`
	OccurredAt  *time.Time `json:"occurredAt"`
}

type eventsResponse struct {
	Events []engine.ActivityEvent `json:"events"`
	Since  time.Time              `json:"since"`
}

// cleanList trims entries and drops blanks and case-insensitive duplicates.
func cleanList(values []string) []string {
	out := []string{}
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
