package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nandanugg/journey-tracker/config"
	"github.com/nandanugg/journey-tracker/module/journey/domain"
)

const (
	exchangeName = "journey.events"
	queueName    = "journey_events"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	conn, err := config.NewRabbitMQ(cfg, "journey-event-listener")
	if err != nil {
		log.Fatalf("rabbitmq: %v", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbitmq channel: %v", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		log.Fatalf("declare exchange: %v", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.Fatalf("declare queue: %v", err)
	}

	if err := ch.QueueBind(queueName, "", exchangeName, false, nil); err != nil {
		log.Fatalf("bind queue: %v", err)
	}

	msgs, err := ch.Consume(queueName, "", true, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	var notifier *lockNotifier
	if cfg.SMTPEnabled() {
		notifier = newMailNotifier(cfg, logger)
	} else {
		logger.Warn("SMTP not configured, locked waypoints are only logged")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("consuming journey events", "queue", queueName)

	go func() {
		for msg := range msgs {
			var evt domain.CycleEvent
			if err := json.Unmarshal(msg.Body, &evt); err != nil {
				logger.Warn("invalid event", "error", err)
				continue
			}

			logger.Info("journey event",
				"journey_id", evt.JourneyID,
				"status", evt.NewStatus,
				"progress", evt.Progress,
				"delay_minutes", evt.DelayMinutes,
				"transitions", len(evt.WaypointTransitions),
				"locked", len(evt.Locked),
			)
			if notifier != nil && len(evt.Locked) > 0 {
				notifier.Handle(ctx, &evt)
			}
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
}
