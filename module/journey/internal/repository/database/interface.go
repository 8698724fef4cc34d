package database

import (
	"context"
	"time"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
)

// CycleWrite is everything one update cycle changes. Implementations must
// apply it atomically and reject it when the stored journey version differs
// from ExpectedVersion.
type CycleWrite struct {
	Report          *domain.PositionReport
	Journey         *domain.Journey
	ETAs            []domain.ETAPrediction
	ExpectedVersion int64
}

type JourneyRepository interface {
	Create(ctx context.Context, j *domain.Journey) error
	Get(ctx context.Context, id string) (*domain.Journey, error)
	SaveCycle(ctx context.Context, w *CycleWrite) error
	UpdateStatus(ctx context.Context, id string, status domain.JourneyStatus, expectedVersion int64) error
	ListRunning(ctx context.Context) ([]domain.Journey, error)
}

type PositionRepository interface {
	Exists(ctx context.Context, sourceID string, ts time.Time) (bool, error)
	Append(ctx context.Context, r *domain.PositionReport) (bool, error)
	Recent(ctx context.Context, journeyID string, since time.Time) ([]domain.PositionReport, error)
	Latest(ctx context.Context, journeyID string) (*domain.PositionReport, error)
	History(ctx context.Context, q *domain.HistoryQuery) ([]domain.PositionReport, error)
}

type SegmentRepository interface {
	SegmentAverages(ctx context.Context, routeID string) (map[domain.SegmentKey]float64, error)
}

type OrderRepository interface {
	PendingOrderIDs(ctx context.Context, journeyID, waypointID string) ([]string, error)
}

type HealthRepository interface {
	FindOpen(ctx context.Context, journeyID string, t domain.HealthEventType) (*domain.HealthEvent, error)
	Insert(ctx context.Context, e *domain.HealthEvent) error
	Resolve(ctx context.Context, id string, at time.Time) error
}
