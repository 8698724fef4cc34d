package journey

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	handler "github.com/nandanugg/journey-tracker/module/journey/internal/handler/http"
	"github.com/nandanugg/journey-tracker/module/journey/internal/handler/stream"
	"github.com/nandanugg/journey-tracker/module/journey/internal/handler/subscriber"
	statecache "github.com/nandanugg/journey-tracker/module/journey/internal/repository/cache/redis"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/database/postgres"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/publisher"
	kafkapub "github.com/nandanugg/journey-tracker/module/journey/internal/repository/publisher/kafka"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/publisher/rabbitmq"
	"github.com/nandanugg/journey-tracker/module/journey/service"
)

type Options struct {
	Coordinator service.CoordinatorConfig
	Geofence    service.GeofenceConfig
	ETA         service.ETAConfig
	Aggregator  service.AggregatorConfig
	Monitor     service.MonitorConfig
	CacheTTL    time.Duration
}

// Clients are the connections the module runs on. Redis and Kafka are
// optional and disable the state cache and the Kafka sink when nil.
type Clients struct {
	DB    *sql.DB
	AMQP  *amqp.Connection
	MQTT  mqtt.Client
	Redis *goredis.Client
	Kafka *kafka.Writer
}

func DefaultOptions() Options {
	return Options{
		Coordinator: service.DefaultCoordinatorConfig(),
		Geofence:    service.DefaultGeofenceConfig(),
		ETA:         service.DefaultETAConfig(),
		Aggregator:  service.DefaultAggregatorConfig(),
		Monitor:     service.DefaultMonitorConfig(),
		CacheTTL:    statecache.DefaultTTL,
	}
}

type Module struct {
	Coordinator *service.Coordinator
	HistorySvc  *service.HistoryService
	Monitor     *service.StaleMonitor
	hub         *stream.Hub
	kafka       *kafkapub.EventPublisher
	handler     *handler.JourneyHandler
	subscriber  *subscriber.PositionSubscriber
}

func Build(clients Clients, logger *slog.Logger, opts Options) (*Module, error) {
	db := clients.DB
	journeyRepo := postgres.NewJourneyRepo(db)
	positionRepo := postgres.NewPositionRepo(db)

	rabbitPub, err := rabbitmq.NewEventPublisher(clients.AMQP)
	if err != nil {
		return nil, fmt.Errorf("event publisher: %w", err)
	}

	hub := stream.NewHub(logger)
	sinks := []publisher.Sink{
		{Name: "rabbitmq", Publisher: publisher.NewBreaker("rabbitmq", rabbitPub)},
		{Name: "websocket", Publisher: hub},
	}

	var kafkaPub *kafkapub.EventPublisher
	if clients.Kafka != nil {
		kafkaPub = kafkapub.NewEventPublisher(clients.Kafka)
		sinks = append(sinks, publisher.Sink{Name: "kafka", Publisher: publisher.NewBreaker("kafka", kafkaPub)})
	}

	deps := service.Deps{
		Journeys:   journeyRepo,
		Positions:  positionRepo,
		Segments:   postgres.NewSegmentRepo(db),
		Orders:     postgres.NewOrderRepo(db),
		Publisher:  publisher.NewFanout(sinks...),
		Geofence:   service.NewGeofenceEvaluator(opts.Geofence, logger),
		ETA:        service.NewETAEstimator(opts.ETA),
		Aggregator: service.NewPositionAggregator(opts.Aggregator, positionRepo),
		Logger:     logger,
	}
	if clients.Redis != nil {
		deps.Cache = statecache.NewStateCache(clients.Redis, opts.CacheTTL)
	}

	coordinator := service.NewCoordinator(opts.Coordinator, deps)
	historySvc := service.NewHistoryService(positionRepo)
	monitor := service.NewStaleMonitor(opts.Monitor, journeyRepo, postgres.NewHealthRepo(db), logger)

	return &Module{
		Coordinator: coordinator,
		HistorySvc:  historySvc,
		Monitor:     monitor,
		hub:         hub,
		kafka:       kafkaPub,
		handler:     handler.NewJourneyHandler(coordinator, historySvc, hub),
		subscriber:  subscriber.NewPositionSubscriber(clients.MQTT, coordinator, logger),
	}, nil
}

func (m *Module) RegisterRoutes(r *gin.RouterGroup) {
	m.handler.Register(r)
}

func (m *Module) StartSubscribers() error {
	return m.subscriber.Start()
}

func (m *Module) RunMonitor(ctx context.Context) error {
	return m.Monitor.Run(ctx)
}

func (m *Module) Close() error {
	m.hub.CloseAll()
	if m.kafka != nil {
		return m.kafka.Close()
	}
	return nil
}
