package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
)

const TopicPattern = "/busnstay/journey/+/position"

const submitTimeout = 10 * time.Second

type journeyService interface {
	Submit(ctx context.Context, r *domain.PositionReport) (*domain.SubmitResult, error)
}

type positionMessage struct {
	SourceType string   `json:"source_type"`
	SourceID   string   `json:"source_id"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Accuracy   *float64 `json:"accuracy,omitempty"`
	Heading    *float64 `json:"heading,omitempty"`
	Speed      *float64 `json:"speed,omitempty"`
	Timestamp  int64    `json:"timestamp"`
}

type PositionSubscriber struct {
	client     mqtt.Client
	journeySvc journeyService
	logger     *slog.Logger
}

func NewPositionSubscriber(client mqtt.Client, journeySvc journeyService, logger *slog.Logger) *PositionSubscriber {
	return &PositionSubscriber{
		client:     client,
		journeySvc: journeySvc,
		logger:     logger,
	}
}

func (s *PositionSubscriber) Start() error {
	token := s.client.Subscribe(TopicPattern, 1, s.handleMessage)
	token.Wait()
	return token.Error()
}

func (s *PositionSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	journeyID, err := journeyIDFromTopic(msg.Topic())
	if err != nil {
		s.logger.Warn("unexpected topic", "topic", msg.Topic(), "error", err)
		return
	}

	var raw positionMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.logger.Warn("invalid position message", "journey_id", journeyID, "error", err)
		return
	}

	if err := validatePositionMessage(&raw); err != nil {
		s.logger.Warn("validation error", "journey_id", journeyID, "error", err)
		return
	}

	report := &domain.PositionReport{
		JourneyID:  journeyID,
		SourceType: domain.SourceType(raw.SourceType),
		SourceID:   raw.SourceID,
		Point:      domain.Point{Lat: raw.Latitude, Lng: raw.Longitude},
		Accuracy:   raw.Accuracy,
		Heading:    raw.Heading,
		Speed:      raw.Speed,
		Timestamp:  time.Unix(raw.Timestamp, 0).UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	res, err := s.journeySvc.Submit(ctx, report)
	if err != nil {
		var appErr *domain.AppError
		if errors.As(err, &appErr) && appErr.Retryable() {
			s.logger.Error("submit position failed", "journey_id", journeyID, "source_id", raw.SourceID, "retryable", true, "error", err)
			return
		}
		s.logger.Warn("position rejected", "journey_id", journeyID, "source_id", raw.SourceID, "code", domain.CodeOf(err), "error", err)
		return
	}

	if res.OutOfOrder || res.Duplicate {
		s.logger.Debug("position not applied",
			"journey_id", journeyID,
			"source_id", raw.SourceID,
			"out_of_order", res.OutOfOrder,
			"duplicate", res.Duplicate,
		)
	}
}

// journeyIDFromTopic extracts the wildcard segment of TopicPattern.
func journeyIDFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[1] != "busnstay" || parts[2] != "journey" || parts[4] != "position" || parts[3] == "" {
		return "", fmt.Errorf("topic %q does not match %s", topic, TopicPattern)
	}
	return parts[3], nil
}

func validatePositionMessage(msg *positionMessage) error {
	if msg.SourceID == "" {
		return fmt.Errorf("source_id: required")
	}
	if msg.SourceType == "" {
		return fmt.Errorf("source_type: required")
	}
	if msg.Latitude < -90 || msg.Latitude > 90 {
		return fmt.Errorf("latitude: must be between -90 and 90")
	}
	if msg.Longitude < -180 || msg.Longitude > 180 {
		return fmt.Errorf("longitude: must be between -180 and 180")
	}
	if msg.Timestamp <= 0 {
		return fmt.Errorf("timestamp: must be positive")
	}
	return nil
}
