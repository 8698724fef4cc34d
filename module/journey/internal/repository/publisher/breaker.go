package publisher

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
)

// Breaker stops calling a broker that keeps failing so a dead sink cannot
// slow every update cycle down to its timeout.
type Breaker struct {
	next EventPublisher
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreaker(name string, next EventPublisher) *Breaker {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Publish(ctx context.Context, evt *domain.CycleEvent) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Publish(ctx, evt)
	})
	return err
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
