package engine

import (
	"testing"
)

func TestExtractSignals_Keywords(t *testing.T) {
	rules, err := DefaultRules()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}

	signals := rules.ExtractSignals("Bad COUGH and my chest feels tight", nil, nil, fixedNow)
	top, ok := signals.Top()
	if !ok {
		t.Fatal("expected a symptom category")
	}
	if top.Category != "respiratory" || top.Matches != 2 {
		t.Fatalf("expected 2 respiratory matches, got %+v", top)
	}
	want := 2.0 / 8.0
	if top.Confidence != want {
		t.Fatalf("expected confidence %.3f, got %.3f", want, top.Confidence)
	}
	if signals.HasRedFlag() {
		t.Fatalf("expected no red flags, got %v", signals.RedFlags)
	}
}

func TestExtractSignals_StrongestFirst(t *testing.T) {
	rules, err := DefaultRules()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}

	signals := rules.ExtractSignals("rash, itching skin and a headache", nil, nil, fixedNow)
	if len(signals.Symptoms) != 2 {
		t.Fatalf("expected 2 categories, got %+v", signals.Symptoms)
	}
	if signals.Symptoms[0].Category != "dermatological" || signals.Symptoms[1].Category != "neurological" {
		t.Fatalf("unexpected order: %+v", signals.Symptoms)
	}
}

func TestExtractSignals_EventWindows(t *testing.T) {
	rules, err := DefaultRules()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}

	events := append(eventsAgo(CategoryConsultation, 1, 29, 31, 89, 91), eventsAgo(CategoryLabOrder, 10)...)
	events = append(events, ActivityEvent{Category: ""}, ActivityEvent{Category: CategoryInsurance})

	signals := rules.ExtractSignals("", nil, events, fixedNow)
	if signals.Recent[CategoryConsultation] != 2 || signals.Trailing[CategoryConsultation] != 4 {
		t.Fatalf("unexpected consultation windows: recent=%v trailing=%v", signals.Recent, signals.Trailing)
	}
	if signals.RecentTotal() != 3 || signals.TrailingTotal() != 5 {
		t.Fatalf("expected totals 3/5, got %d/%d", signals.RecentTotal(), signals.TrailingTotal())
	}
	if _, ok := signals.Recent[CategoryInsurance]; ok {
		t.Fatal("expected undated events to be ignored")
	}
}

func TestExtractSignals_NilInputs(t *testing.T) {
	rules, err := DefaultRules()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}

	signals := rules.ExtractSignals("", nil, nil, fixedNow)
	if len(signals.Symptoms) != 0 || signals.RecentTotal() != 0 || signals.Profile.OnRecord {
		t.Fatalf("expected empty signals, got %+v", signals)
	}
	if !signals.Profile.Uninsured {
		t.Fatal("expected missing profile to count as uninsured")
	}
}

func TestExtractSignals_Profile(t *testing.T) {
	rules, err := DefaultRules()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}

	profile := &UserProfile{
		Age:               intPtr(70),
		Conditions:        []string{"hypertension", ""},
		Medications:       []string{"amlodipine"},
		InsuranceProvider: "Acme Health",
	}
	p := rules.ExtractSignals("", profile, nil, fixedNow).Profile
	if !p.OnRecord || p.Uninsured || p.Conditions != 1 || p.Medications != 1 || *p.Age != 70 {
		t.Fatalf("unexpected profile signal: %+v", p)
	}
}
