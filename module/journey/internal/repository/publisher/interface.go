package publisher

import (
	"context"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, evt *domain.CycleEvent) error
}
