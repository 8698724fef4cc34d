package cache

import (
	"context"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
)

// StateCache holds the last committed JourneyState of each journey.
// A miss is reported as (nil, nil).
type StateCache interface {
	Get(ctx context.Context, journeyID string) (*domain.JourneyState, error)
	Set(ctx context.Context, state *domain.JourneyState) error
	Delete(ctx context.Context, journeyID string) error
}
