package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/publisher"
)

var _ publisher.EventPublisher = (*EventPublisher)(nil)

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventPublisher writes cycle events keyed by journey ID, so all events of
// one journey land on the same partition in commit order.
type EventPublisher struct {
	writer writer
}

// NewEventPublisher takes a writer configured with a key-hashing balancer,
// such as the one built by config.NewKafkaWriter.
func NewEventPublisher(w *kafka.Writer) *EventPublisher {
	return &EventPublisher{writer: w}
}

func (p *EventPublisher) Publish(ctx context.Context, evt *domain.CycleEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.JourneyID),
		Value: data,
		Time:  evt.Timestamp,
	})
}

// Close flushes pending messages and closes the connection.
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}
