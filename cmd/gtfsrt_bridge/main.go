package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kelseyhightower/envconfig"

	"github.com/nandanugg/journey-tracker/config"
	"github.com/nandanugg/journey-tracker/module/journey/domain"
)

type bridgeEnv struct {
	FeedURL      string        `envconfig:"GTFSRT_VEHICLE_POSITIONS_URL" required:"true"`
	PollInterval time.Duration `envconfig:"GTFSRT_POLL_INTERVAL" default:"15s"`
	MQTTBroker   string        `envconfig:"MQTT_BROKER" default:"tcp://localhost:1883"`
	MQTTClientID string        `envconfig:"MQTT_CLIENT_ID" default:"journey-gtfsrt-bridge"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info"`
}

type positionMessage struct {
	SourceType string   `json:"source_type"`
	SourceID   string   `json:"source_id"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Heading    *float64 `json:"heading,omitempty"`
	Speed      *float64 `json:"speed,omitempty"`
	Timestamp  int64    `json:"timestamp"`
}

func main() {
	var env bridgeEnv
	if err := envconfig.Process("", &env); err != nil {
		fmt.Fprintf(os.Stderr, "env: %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger(env.LogLevel)

	client, err := config.NewMQTT(config.MQTTSettings{
		Broker:   env.MQTTBroker,
		ClientID: env.MQTTClientID,
	}, logger)
	if err != nil {
		logger.Error("mqtt", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	seen := newDedupe(4 * env.PollInterval)

	ticker := time.NewTicker(env.PollInterval)
	defer ticker.Stop()

	logger.Info("polling feed", "url", env.FeedURL, "interval", env.PollInterval)
	for {
		forwarded, err := poll(ctx, httpClient, client, env.FeedURL, seen)
		if err != nil {
			logger.Error("poll failed", "error", err)
		} else {
			logger.Debug("poll done", "forwarded", forwarded)
		}

		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
		}
	}
}

// poll republishes every new vehicle position, using the trip ID as the
// journey ID.
func poll(ctx context.Context, httpClient *http.Client, client mqtt.Client, url string, seen *dedupe) (int, error) {
	fm, err := fetchFeed(ctx, httpClient, url)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	defer seen.prune(now)

	forwarded := 0
	for _, vp := range vehiclePositions(fm) {
		if !seen.fresh(vp, now) {
			continue
		}
		payload, _ := json.Marshal(positionMessage{
			SourceType: string(domain.SourceVehicle),
			SourceID:   vp.VehicleID,
			Latitude:   vp.Latitude,
			Longitude:  vp.Longitude,
			Heading:    vp.Heading,
			Speed:      vp.SpeedKmh,
			Timestamp:  vp.Timestamp,
		})
		topic := fmt.Sprintf("/busnstay/journey/%s/position", vp.TripID)
		token := client.Publish(topic, 1, false, payload)
		token.Wait()
		if err := token.Error(); err != nil {
			return forwarded, fmt.Errorf("publish %s: %w", topic, err)
		}
		forwarded++
	}
	return forwarded, nil
}
