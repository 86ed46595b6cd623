// Package store reads and writes the rows the recommendation engine consumes: user
// profiles and the append-only activity log.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Skufu/MeddyPal/internal/engine"
)

var ErrNotFound = errors.New("not found")

// MaxEvents bounds how many activity rows one request loads.
const MaxEvents = 500

type ProfileRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*engine.UserProfile, error)
	Upsert(ctx context.Context, p *engine.UserProfile) error
}

type EventRepository interface {
	Append(ctx context.Context, e *engine.ActivityEvent) error
	// ListSince returns events at or after since, newest first, at most limit rows.
	ListSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]engine.ActivityEvent, error)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxEvents {
		return MaxEvents
	}
	return limit
}
