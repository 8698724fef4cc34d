package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/database"
)

var _ database.HealthRepository = (*HealthRepo)(nil)

type HealthRepo struct {
	db DBTX
}

func NewHealthRepo(db DBTX) *HealthRepo {
	return &HealthRepo{db: db}
}

// FindOpen returns the unresolved event of type t for a journey, or nil.
func (r *HealthRepo) FindOpen(ctx context.Context, journeyID string, t domain.HealthEventType) (*domain.HealthEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, event_type, severity, journey_id, description, resolved, detected_at, resolved_at
		FROM health_events WHERE journey_id = $1 AND event_type = $2 AND resolved = false
		ORDER BY detected_at DESC LIMIT 1`,
		journeyID, string(t),
	)

	var (
		e                   domain.HealthEvent
		eventType, severity string
		resolvedAt          sql.NullTime
	)
	err := row.Scan(&e.ID, &eventType, &severity, &e.JourneyID, &e.Description, &e.Resolved, &e.DetectedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Type = domain.HealthEventType(eventType)
	e.Severity = domain.Severity(severity)
	e.ResolvedAt = timePtr(resolvedAt)
	return &e, nil
}

func (r *HealthRepo) Insert(ctx context.Context, e *domain.HealthEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO health_events (id, event_type, severity, journey_id, description, resolved, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, string(e.Type), string(e.Severity), e.JourneyID, e.Description, e.Resolved, e.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert health event: %w", err)
	}
	return nil
}

func (r *HealthRepo) Resolve(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE health_events SET resolved = true, resolved_at = $1 WHERE id = $2`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("resolve health event: %w", err)
	}
	return nil
}
