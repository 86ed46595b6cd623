package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Skufu/MeddyPal/internal/engine"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Profile Repository ===========

type profileRepoPG struct{ db queryable }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepoPG{db: pool}
}

const profileCols = `user_id, full_name, age, gender, location, conditions, allergies, medications,
	emergency_contact, has_insurance, insurance_provider, insurance_policy_number, updated_at`

func (r *profileRepoPG) Get(ctx context.Context, userID uuid.UUID) (*engine.UserProfile, error) {
	var (
		p                                   engine.UserProfile
		fullName, gender, location, contact *string
		provider, policy                    *string
	)
	err := r.db.QueryRow(ctx, `SELECT `+profileCols+` FROM user_profile WHERE user_id = $1`, userID).Scan(
		&p.UserID, &fullName, &p.Age, &gender, &location, &p.Conditions, &p.Allergies, &p.Medications,
		&contact, &p.HasInsurance, &provider, &policy, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.FullName = deref(fullName)
	p.Gender = deref(gender)
	p.Location = deref(location)
	p.EmergencyContact = deref(contact)
	p.InsuranceProvider = deref(provider)
	p.InsurancePolicyNumber = deref(policy)
	return &p, nil
}

func (r *profileRepoPG) Upsert(ctx context.Context, p *engine.UserProfile) error {
	now := time.Now().UTC()
	p.UpdatedAt = &now
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_profile (user_id, full_name, age, gender, location, conditions, allergies,
			medications, emergency_contact, has_insurance, insurance_provider, insurance_policy_number, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name=EXCLUDED.full_name, age=EXCLUDED.age, gender=EXCLUDED.gender,
			location=EXCLUDED.location, conditions=EXCLUDED.conditions, allergies=EXCLUDED.allergies,
			medications=EXCLUDED.medications, emergency_contact=EXCLUDED.emergency_contact,
			has_insurance=EXCLUDED.has_insurance, insurance_provider=EXCLUDED.insurance_provider,
			insurance_policy_number=EXCLUDED.insurance_policy_number, updated_at=EXCLUDED.updated_at`,
		p.UserID, nullable(p.FullName), p.Age, nullable(p.Gender), nullable(p.Location),
		nonNil(p.Conditions), nonNil(p.Allergies), nonNil(p.Medications), nullable(p.EmergencyContact),
		p.HasInsurance, nullable(p.InsuranceProvider), nullable(p.InsurancePolicyNumber), p.UpdatedAt)
	return err
}

// =========== Event Repository ===========

type eventRepoPG struct{ db queryable }

func NewEventRepoPG(pool *pgxpool.Pool) EventRepository {
	return &eventRepoPG{db: pool}
}

func (r *eventRepoPG) Append(ctx context.Context, e *engine.ActivityEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO activity_event (id, user_id, category, description, occurred_at)
		VALUES ($1,$2,$3,$4,$5)`,
		e.ID, e.UserID, e.Category, nullable(e.Description), e.OccurredAt)
	return err
}

func (r *eventRepoPG) ListSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]engine.ActivityEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, category, description, occurred_at FROM activity_event
		WHERE user_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at DESC LIMIT $3`, userID, since, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []engine.ActivityEvent{}
	for rows.Next() {
		var (
			e    engine.ActivityEvent
			desc *string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Category, &desc, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Description = deref(desc)
		items = append(items, e)
	}
	return items, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
