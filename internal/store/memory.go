package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Skufu/MeddyPal/internal/engine"
)

// Memory keeps profiles and events in process. It backs the server when the database
// is disabled and doubles as a test fake.
type Memory struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]engine.UserProfile
	events   map[uuid.UUID][]engine.ActivityEvent
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[uuid.UUID]engine.UserProfile),
		events:   make(map[uuid.UUID][]engine.ActivityEvent),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Profiles and Events expose the store through the repository interfaces.
func (m *Memory) Profiles() ProfileRepository { return memoryProfiles{m} }
func (m *Memory) Events() EventRepository     { return memoryEvents{m} }

type memoryProfiles struct{ m *Memory }

func (r memoryProfiles) Get(_ context.Context, userID uuid.UUID) (*engine.UserProfile, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	p, ok := r.m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	p = cloneProfile(p)
	return &p, nil
}

func (r memoryProfiles) Upsert(_ context.Context, p *engine.UserProfile) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	now := r.m.now()
	p.UpdatedAt = &now
	r.m.profiles[p.UserID] = cloneProfile(*p)
	return nil
}

type memoryEvents struct{ m *Memory }

func (r memoryEvents) Append(_ context.Context, e *engine.ActivityEvent) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.m.now()
	}
	r.m.events[e.UserID] = append(r.m.events[e.UserID], *e)
	return nil
}

func (r memoryEvents) ListSince(_ context.Context, userID uuid.UUID, since time.Time, limit int) ([]engine.ActivityEvent, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	items := []engine.ActivityEvent{}
	for _, e := range r.m.events[userID] {
		if !e.OccurredAt.Before(since) {
			items = append(items, e)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].OccurredAt.After(items[j].OccurredAt)
	})
	if n := clampLimit(limit); len(items) > n {
		items = items[:n]
	}
	return items, nil
}

func cloneProfile(p engine.UserProfile) engine.UserProfile {
	p.Conditions = append([]string(nil), p.Conditions...)
	p.Allergies = append([]string(nil), p.Allergies...)
	p.Medications = append([]string(nil), p.Medications...)
	if p.Age != nil {
		age := *p.Age
		p.Age = &age
	}
	if p.HasInsurance != nil {
		ins := *p.HasInsurance
		p.HasInsurance = &ins
	}
	if p.UpdatedAt != nil {
		at := *p.UpdatedAt
		p.UpdatedAt = &at
	}
	return p
}
