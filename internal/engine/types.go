package engine

import (
	"time"

	"github.com/google/uuid"
)

type Intent string

const (
	IntentHealthConcern   Intent = "health_concern"
	IntentBookAppointment Intent = "book_appointment"
	IntentLabTest         Intent = "lab_test"
	IntentMedication      Intent = "medication"
	IntentInsurance       Intent = "insurance"
	IntentGeneralInquiry  Intent = "general_inquiry"
)

// Intents lists every intent the classifier may return.
var Intents = []Intent{
	IntentHealthConcern,
	IntentBookAppointment,
	IntentLabTest,
	IntentMedication,
	IntentInsurance,
	IntentGeneralInquiry,
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

var urgencyRank = map[Urgency]int{
	UrgencyLow:      0,
	UrgencyMedium:   1,
	UrgencyHigh:     2,
	UrgencyCritical: 3,
}

// Rank orders urgencies low < medium < high < critical. Unknown values rank as low.
func (u Urgency) Rank() int {
	return urgencyRank[u]
}

func maxUrgency(a, b Urgency) Urgency {
	if b.Rank() > a.Rank() {
		return b
	}
	if a == "" {
		return UrgencyLow
	}
	return a
}

type ResponseType string

const (
	ResponseConversation          ResponseType = "conversation"
	ResponseServiceRecommendation ResponseType = "service_recommendation"
	ResponseUrgentAction          ResponseType = "urgent_action"
	ResponseEducational           ResponseType = "educational"
)

// Event categories recorded by the portal when an action completes.
const (
	CategoryConsultation    = "consultation"
	CategoryLabOrder        = "lab_order"
	CategoryMedicationOrder = "medication_order"
	CategoryAppointment     = "appointment"
	CategoryInsurance       = "insurance"
	CategorySymptomCheck    = "symptom_check"
)

// EventCategories is the closed set of activity categories.
var EventCategories = []string{
	CategoryConsultation,
	CategoryLabOrder,
	CategoryMedicationOrder,
	CategoryAppointment,
	CategoryInsurance,
	CategorySymptomCheck,
}

type UserProfile struct {
	UserID                uuid.UUID  `json:"userId"`
	FullName              string     `json:"fullName,omitempty"`
	Age                   *int       `json:"age,omitempty"`
	Gender                string     `json:"gender,omitempty"`
	Location              string     `json:"location,omitempty"`
	Conditions            []string   `json:"conditions,omitempty"`
	Allergies             []string   `json:"allergies,omitempty"`
	Medications           []string   `json:"medications,omitempty"`
	EmergencyContact      string     `json:"emergencyContact,omitempty"`
	HasInsurance          *bool      `json:"hasInsurance,omitempty"`
	InsuranceProvider     string     `json:"insuranceProvider,omitempty"`
	InsurancePolicyNumber string     `json:"insurancePolicyNumber,omitempty"`
	UpdatedAt             *time.Time `json:"updatedAt,omitempty"`
}

// IsZero reports whether no user-editable field is set.
func (p *UserProfile) IsZero() bool {
	if p == nil {
		return true
	}
	return p.FullName == "" && p.Age == nil && p.Gender == "" && p.Location == "" &&
		len(p.Conditions) == 0 && len(p.Allergies) == 0 && len(p.Medications) == 0 &&
		p.EmergencyContact == "" && !p.hasInsuranceData()
}

func (p *UserProfile) hasInsuranceData() bool {
	return p.HasInsurance != nil || p.InsuranceProvider != "" || p.InsurancePolicyNumber != ""
}

// Insured reports whether the profile carries any positive insurance information.
func (p *UserProfile) Insured() bool {
	if p == nil {
		return false
	}
	if p.HasInsurance != nil {
		return *p.HasInsurance
	}
	return p.InsuranceProvider != "" || p.InsurancePolicyNumber != ""
}

type ActivityEvent struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"userId"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

type Recommendation struct {
	ID            string   `json:"id"`
	Label         string   `json:"label"`
	Description   string   `json:"description"`
	ServiceType   string   `json:"serviceType"`
	Priority      int      `json:"priority"`
	Urgency       Urgency  `json:"urgency"`
	EstimatedCost string   `json:"estimatedCost"`
	EstimatedTime string   `json:"estimatedTime"`
	NextSteps     []string `json:"nextSteps"`
}

type Request struct {
	FreeText           string          `json:"freeText"`
	Profile            *UserProfile    `json:"profile"`
	Events             []ActivityEvent `json:"events"`
	MaxRecommendations int             `json:"maxRecommendations"`
	// At overrides the engine clock when non-zero.
	At time.Time `json:"-"`
}

type Response struct {
	Type             ResponseType     `json:"type"`
	Content          string           `json:"content"`
	Urgency          Urgency          `json:"urgency"`
	SuggestedActions []Recommendation `json:"suggestedActions"`
	Intent           Intent           `json:"intent"`
	Scores           Scores           `json:"scores"`
}

type Scores struct {
	Engagement          int `json:"engagementScore"`
	ProfileCompleteness int `json:"profileCompletenessScore"`
}
