package postgres

import (
	"context"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/database"
)

var _ database.SegmentRepository = (*SegmentRepo)(nil)

type SegmentRepo struct {
	db DBTX
}

func NewSegmentRepo(db DBTX) *SegmentRepo {
	return &SegmentRepo{db: db}
}

// SegmentAverages returns the mean recorded travel time of every segment of a route.
func (r *SegmentRepo) SegmentAverages(ctx context.Context, routeID string) (map[domain.SegmentKey]float64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT from_stop_id, to_stop_id, AVG(duration_minutes) FROM segment_performance
		WHERE route_id = $1 GROUP BY from_stop_id, to_stop_id`,
		routeID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := make(map[domain.SegmentKey]float64)
	for rows.Next() {
		var (
			key domain.SegmentKey
			avg float64
		)
		if err := rows.Scan(&key.From, &key.To, &avg); err != nil {
			return nil, err
		}
		results[key] = avg
	}
	return results, rows.Err()
}
