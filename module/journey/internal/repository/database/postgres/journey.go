package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/database"
)

var _ database.JourneyRepository = (*JourneyRepo)(nil)

const journeyColumns = `id, route_id, vehicle_id, status, progress, delay_minutes, departure_time, last_report_at,
	canonical_latitude, canonical_longitude, canonical_source_type, canonical_source_id,
	canonical_accuracy, canonical_heading, canonical_speed, canonical_recorded_at,
	version, created_at, updated_at`

const stopColumns = `id, name, latitude, longitude, category, sequence, status, distance_km, minutes_to_arrival,
	close_at_distance_km, close_at_minutes_remaining, scheduled_offset_minutes,
	closing_soon_at, closed_at, locked_at`

type JourneyRepo struct {
	db *sql.DB
}

func NewJourneyRepo(db *sql.DB) *JourneyRepo {
	return &JourneyRepo{db: db}
}

func (r *JourneyRepo) Create(ctx context.Context, j *domain.Journey) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create journey: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	args := append([]any{j.ID, j.RouteID, j.VehicleID, string(j.Status), j.Progress, j.DelayMinutes,
		j.DepartureTime, nullTimeValue(j.LastReportAt)}, canonicalArgs(j.Canonical)...)
	args = append(args, j.Version, j.CreatedAt, j.UpdatedAt)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO journeys (`+journeyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewAppError(domain.ErrCodeJourneyExists, fmt.Sprintf("journey %s already exists", j.ID), err)
		}
		return fmt.Errorf("insert journey: %w", err)
	}

	for _, wp := range j.Waypoints {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO route_stops (journey_id, `+stopColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			j.ID, wp.ID, wp.Name, wp.Point.Lat, wp.Point.Lng, string(wp.Category), wp.Sequence, string(wp.Status),
			wp.DistanceKm, wp.MinutesToArrival, wp.CloseAtDistanceKm, wp.CloseAtMinutesRemaining,
			wp.ScheduledOffsetMinutes, nullTime(wp.ClosingSoonAt), nullTime(wp.ClosedAt), nullTime(wp.LockedAt),
		)
		if err != nil {
			return fmt.Errorf("insert route stop %s: %w", wp.ID, err)
		}
	}
	return tx.Commit()
}

func (r *JourneyRepo) Get(ctx context.Context, id string) (*domain.Journey, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+journeyColumns+` FROM journeys WHERE id = $1`, id)
	j, err := scanJourney(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJourneyNotFound
		}
		return nil, err
	}

	j.Waypoints, err = r.stops(ctx, id)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *JourneyRepo) stops(ctx context.Context, journeyID string) ([]domain.Waypoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+stopColumns+` FROM route_stops WHERE journey_id = $1 ORDER BY sequence ASC`,
		journeyID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []domain.Waypoint
	for rows.Next() {
		var (
			wp                          domain.Waypoint
			category, status            string
			closingSoon, closed, locked sql.NullTime
		)
		err := rows.Scan(&wp.ID, &wp.Name, &wp.Point.Lat, &wp.Point.Lng, &category, &wp.Sequence, &status,
			&wp.DistanceKm, &wp.MinutesToArrival, &wp.CloseAtDistanceKm, &wp.CloseAtMinutesRemaining,
			&wp.ScheduledOffsetMinutes, &closingSoon, &closed, &locked)
		if err != nil {
			return nil, err
		}
		wp.Category = domain.Category(category)
		wp.Status = domain.WaypointStatus(status)
		wp.ClosingSoonAt = timePtr(closingSoon)
		wp.ClosedAt = timePtr(closed)
		wp.LockedAt = timePtr(locked)
		results = append(results, wp)
	}
	return results, rows.Err()
}

// SaveCycle writes the journey row, its stops, the triggering report and the
// ETA upserts in one transaction guarded by the journey version.
func (r *JourneyRepo) SaveCycle(ctx context.Context, w *database.CycleWrite) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cycle: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	j := w.Journey
	args := append([]any{string(j.Status), j.Progress, j.DelayMinutes, nullTimeValue(j.LastReportAt)}, canonicalArgs(j.Canonical)...)
	args = append(args, j.Version, j.UpdatedAt, j.ID, w.ExpectedVersion)
	res, err := tx.ExecContext(ctx,
		`UPDATE journeys SET status = $1, progress = $2, delay_minutes = $3, last_report_at = $4,
			canonical_latitude = $5, canonical_longitude = $6, canonical_source_type = $7, canonical_source_id = $8,
			canonical_accuracy = $9, canonical_heading = $10, canonical_speed = $11, canonical_recorded_at = $12,
			version = $13, updated_at = $14
		WHERE id = $15 AND version = $16`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update journey: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update journey: %w", err)
	}
	if n == 0 {
		return domain.ErrVersionConflict
	}

	for _, wp := range j.Waypoints {
		_, err := tx.ExecContext(ctx,
			`UPDATE route_stops SET status = $1, distance_km = $2, minutes_to_arrival = $3,
				closing_soon_at = $4, closed_at = $5, locked_at = $6
			WHERE journey_id = $7 AND id = $8`,
			string(wp.Status), wp.DistanceKm, wp.MinutesToArrival,
			nullTime(wp.ClosingSoonAt), nullTime(wp.ClosedAt), nullTime(wp.LockedAt),
			j.ID, wp.ID,
		)
		if err != nil {
			return fmt.Errorf("update route stop %s: %w", wp.ID, err)
		}
	}

	if w.Report != nil {
		inserted, err := insertReport(ctx, tx, w.Report)
		if err != nil {
			return err
		}
		if !inserted {
			return domain.ErrDuplicateReport
		}
	}

	for _, p := range w.ETAs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO eta_predictions (journey_id, waypoint_id, predicted_arrival, confidence, is_delayed, delay_minutes, calculated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (journey_id, waypoint_id) DO UPDATE SET
				predicted_arrival = EXCLUDED.predicted_arrival,
				confidence = EXCLUDED.confidence,
				is_delayed = EXCLUDED.is_delayed,
				delay_minutes = EXCLUDED.delay_minutes,
				calculated_at = EXCLUDED.calculated_at`,
			p.JourneyID, p.WaypointID, p.PredictedArrival, p.Confidence, p.IsDelayed, p.DelayMinutes, p.CalculatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert eta %s: %w", p.WaypointID, err)
		}
	}

	return tx.Commit()
}

func (r *JourneyRepo) UpdateStatus(ctx context.Context, id string, status domain.JourneyStatus, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE journeys SET status = $1::text,
			progress = CASE WHEN $1::text = 'COMPLETED' THEN 100 ELSE progress END,
			version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3`,
		string(status), id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update journey status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update journey status: %w", err)
	}
	if n == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// ListRunning returns ACTIVE and DELAYED journeys without their stops.
func (r *JourneyRepo) ListRunning(ctx context.Context) ([]domain.Journey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+journeyColumns+` FROM journeys WHERE status IN ('ACTIVE', 'DELAYED') ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []domain.Journey
	for rows.Next() {
		j, err := scanJourney(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *j)
	}
	return results, rows.Err()
}

func scanJourney(s scanner) (*domain.Journey, error) {
	var (
		j                    domain.Journey
		status               string
		lastReport, recorded sql.NullTime
		lat, lng             sql.NullFloat64
		acc, heading, speed  sql.NullFloat64
		srcType, srcID       sql.NullString
	)
	err := s.Scan(&j.ID, &j.RouteID, &j.VehicleID, &status, &j.Progress, &j.DelayMinutes, &j.DepartureTime, &lastReport,
		&lat, &lng, &srcType, &srcID, &acc, &heading, &speed, &recorded,
		&j.Version, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Status = domain.JourneyStatus(status)
	if lastReport.Valid {
		j.LastReportAt = lastReport.Time
	}
	if lat.Valid && lng.Valid && recorded.Valid {
		j.Canonical = &domain.CanonicalPosition{
			Point:      domain.Point{Lat: lat.Float64, Lng: lng.Float64},
			SourceType: domain.SourceType(srcType.String),
			SourceID:   srcID.String,
			Accuracy:   floatPtr(acc),
			Heading:    floatPtr(heading),
			Speed:      floatPtr(speed),
			RecordedAt: recorded.Time,
		}
	}
	return &j, nil
}

// canonicalArgs returns the eight canonical_* column values, all NULL when c is nil.
func canonicalArgs(c *domain.CanonicalPosition) []any {
	if c == nil {
		return []any{
			sql.NullFloat64{}, sql.NullFloat64{}, sql.NullString{}, sql.NullString{},
			sql.NullFloat64{}, sql.NullFloat64{}, sql.NullFloat64{}, sql.NullTime{},
		}
	}
	return []any{
		c.Point.Lat, c.Point.Lng, string(c.SourceType), c.SourceID,
		nullFloat(c.Accuracy), nullFloat(c.Heading), nullFloat(c.Speed), c.RecordedAt,
	}
}
