package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nandanugg/journey-tracker/config"
	"github.com/nandanugg/journey-tracker/module/journey"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	db, err := config.NewPostgres(context.Background(), cfg)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer func() { _ = db.Close() }()

	amqpConn, err := config.NewRabbitMQ(cfg, "journey-server")
	if err != nil {
		log.Fatalf("rabbitmq: %v", err)
	}
	defer func() { _ = amqpConn.Close() }()

	mqttClient, err := config.NewMQTT(config.MQTTSettings{
		Broker:            cfg.MQTTBroker,
		ClientID:          cfg.MQTTClientID,
		PersistentSession: true,
	}, logger)
	if err != nil {
		log.Fatalf("mqtt: %v", err)
	}
	defer mqttClient.Disconnect(250)

	rdb, err := config.NewRedis(cfg)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	journeyModule, err := journey.Build(journey.Clients{
		DB:    db,
		AMQP:  amqpConn,
		MQTT:  mqttClient,
		Redis: rdb,
		Kafka: config.NewKafkaWriter(cfg),
	}, logger, journeyOptions(cfg))
	if err != nil {
		log.Fatalf("journey module: %v", err)
	}
	defer func() { _ = journeyModule.Close() }()

	if err := journeyModule.StartSubscribers(); err != nil {
		log.Fatalf("start subscribers: %v", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	health := config.NewHealthChecker(db, amqpConn, mqttClient, rdb)
	health.Register(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	journeyModule.RegisterRoutes(&r.RouterGroup)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return journeyModule.RunMonitor(gCtx)
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down")
}

func journeyOptions(cfg *config.Config) journey.Options {
	opts := journey.DefaultOptions()
	opts.Coordinator.PersistTimeout = cfg.PersistTimeout
	opts.Coordinator.StaleThreshold = cfg.StaleThreshold
	opts.Coordinator.MaxClockSkew = cfg.MaxClockSkew
	opts.Monitor.StaleThreshold = cfg.StaleThreshold
	opts.Monitor.Interval = cfg.MonitorInterval
	opts.Aggregator.Window = cfg.AggregationWindow
	opts.Aggregator.Strategy = cfg.AggregationStrategy
	opts.ETA.DefaultSpeedKmh = cfg.DefaultSpeedKmh
	opts.CacheTTL = cfg.StateCacheTTL
	return opts
}
