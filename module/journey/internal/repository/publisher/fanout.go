package publisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/internal/metrics"
)

type Sink struct {
	Name      string
	Publisher EventPublisher
}

// Fanout delivers every event to all sinks. A failing sink does not stop
// delivery to the others.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Publish(ctx context.Context, evt *domain.CycleEvent) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publisher.Publish(ctx, evt); err != nil {
			metrics.PublishFailures.WithLabelValues(s.Name).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}
