package postgres

import (
	"context"

	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/database"
)

var _ database.OrderRepository = (*OrderRepo)(nil)

// OrderRepo only reads; orders are owned by the ordering service.
type OrderRepo struct {
	db DBTX
}

func NewOrderRepo(db DBTX) *OrderRepo {
	return &OrderRepo{db: db}
}

func (r *OrderRepo) PendingOrderIDs(ctx context.Context, journeyID, waypointID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM orders WHERE journey_id = $1 AND stop_id = $2 AND status <> 'DELIVERED' ORDER BY created_at ASC`,
		journeyID, waypointID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
