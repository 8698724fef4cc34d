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

var _ database.PositionRepository = (*PositionRepo)(nil)

const positionColumns = `journey_id, source_type, source_id, latitude, longitude, accuracy, heading, speed, recorded_at`

type PositionRepo struct {
	db DBTX
}

func NewPositionRepo(db DBTX) *PositionRepo {
	return &PositionRepo{db: db}
}

func (r *PositionRepo) Exists(ctx context.Context, sourceID string, ts time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM position_reports WHERE source_id = $1 AND recorded_at = $2)`,
		sourceID, ts,
	).Scan(&exists)
	return exists, err
}

// Append adds report to the log and reports false when (source_id, recorded_at)
// is already present.
func (r *PositionRepo) Append(ctx context.Context, report *domain.PositionReport) (bool, error) {
	return insertReport(ctx, r.db, report)
}

func insertReport(ctx context.Context, q DBTX, r *domain.PositionReport) (bool, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO position_reports (`+positionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source_id, recorded_at) DO NOTHING`,
		r.JourneyID, string(r.SourceType), r.SourceID, r.Point.Lat, r.Point.Lng,
		nullFloat(r.Accuracy), nullFloat(r.Heading), nullFloat(r.Speed), r.Timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("insert position report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert position report: %w", err)
	}
	return n == 1, nil
}

func (r *PositionRepo) Recent(ctx context.Context, journeyID string, since time.Time) ([]domain.PositionReport, error) {
	return r.query(ctx,
		`SELECT `+positionColumns+` FROM position_reports WHERE journey_id = $1 AND recorded_at >= $2 ORDER BY recorded_at ASC`,
		journeyID, since,
	)
}

func (r *PositionRepo) Latest(ctx context.Context, journeyID string) (*domain.PositionReport, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM position_reports WHERE journey_id = $1 ORDER BY recorded_at DESC LIMIT 1`,
		journeyID,
	)
	p, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoPositions
	}
	return p, err
}

func (r *PositionRepo) History(ctx context.Context, q *domain.HistoryQuery) ([]domain.PositionReport, error) {
	return r.query(ctx,
		`SELECT `+positionColumns+` FROM position_reports WHERE journey_id = $1 AND recorded_at >= $2 AND recorded_at <= $3 ORDER BY recorded_at ASC`,
		q.JourneyID, q.Start, q.End,
	)
}

func (r *PositionRepo) query(ctx context.Context, query string, args ...any) ([]domain.PositionReport, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []domain.PositionReport
	for rows.Next() {
		p, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *p)
	}
	return results, rows.Err()
}

func scanReport(s scanner) (*domain.PositionReport, error) {
	var (
		p                   domain.PositionReport
		sourceType          string
		acc, heading, speed sql.NullFloat64
	)
	if err := s.Scan(&p.JourneyID, &sourceType, &p.SourceID, &p.Point.Lat, &p.Point.Lng, &acc, &heading, &speed, &p.Timestamp); err != nil {
		return nil, err
	}
	p.SourceType = domain.SourceType(sourceType)
	p.Accuracy = floatPtr(acc)
	p.Heading = floatPtr(heading)
	p.Speed = floatPtr(speed)
	return &p, nil
}
