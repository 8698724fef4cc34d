package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
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

type simulatorEnv struct {
	APIURL     string `envconfig:"API_URL" default:"http://localhost:8080"`
	MQTTBroker string `envconfig:"MQTT_BROKER" default:"tcp://localhost:1883"`
}

type positionMessage struct {
	SourceType string   `json:"source_type"`
	SourceID   string   `json:"source_id"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Accuracy   *float64 `json:"accuracy,omitempty"`
	Speed      *float64 `json:"speed,omitempty"`
	Timestamp  int64    `json:"timestamp"`
}

type createJourneyRequest struct {
	RouteID   string                 `json:"route_id"`
	VehicleID string                 `json:"vehicle_id"`
	Waypoints []config.RouteWaypoint `json:"waypoints"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <route.yaml>\n", os.Args[0])
		os.Exit(1)
	}

	route, err := config.LoadRoute(os.Args[1])
	if err != nil {
		log.Fatalf("route: %v", err)
	}

	var env simulatorEnv
	if err := envconfig.Process("", &env); err != nil {
		log.Fatalf("env: %v", err)
	}

	journeyID, err := createJourney(env.APIURL, route)
	if err != nil {
		log.Fatalf("create journey: %v", err)
	}

	client, err := config.NewMQTT(config.MQTTSettings{
		Broker:   env.MQTTBroker,
		ClientID: "journey-simulator-" + journeyID,
	}, slog.Default())
	if err != nil {
		log.Fatalf("mqtt: %v", err)
	}
	defer client.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("journey %s created, publishing every %s...", journeyID, route.Interval)

	w := newWalker(route)
	stepKm := route.SpeedKmh * route.Interval.Hours()
	topic := fmt.Sprintf("/busnstay/journey/%s/position", journeyID)

	ticker := time.NewTicker(route.Interval)
	defer ticker.Stop()

	for !w.done() {
		select {
		case <-ctx.Done():
			log.Println("shutting down")
			return
		case <-ticker.C:
		}

		p := w.advance(stepKm)
		now := time.Now().Unix()
		speed := route.SpeedKmh

		publish(client, topic, positionMessage{
			SourceType: string(domain.SourceVehicle),
			SourceID:   route.VehicleID,
			Latitude:   p.Lat,
			Longitude:  p.Lng,
			Speed:      &speed,
			Timestamp:  now,
		})

		for i := 0; i < route.Passengers; i++ {
			// about 50m of phone GPS jitter
			accuracy := 20 + rand.Float64()*60
			publish(client, topic, positionMessage{
				SourceType: string(domain.SourcePassenger),
				SourceID:   fmt.Sprintf("%s-passenger-%d", route.VehicleID, i+1),
				Latitude:   p.Lat + (rand.Float64()-0.5)*0.001,
				Longitude:  p.Lng + (rand.Float64()-0.5)*0.001,
				Accuracy:   &accuracy,
				Timestamp:  now,
			})
		}
	}

	log.Printf("journey %s reached its last waypoint", journeyID)
}

func createJourney(apiURL string, route *config.Route) (string, error) {
	body, err := json.Marshal(createJourneyRequest{
		RouteID:   route.RouteID,
		VehicleID: route.VehicleID,
		Waypoints: route.Waypoints,
	})
	if err != nil {
		return "", err
	}

	resp, err := http.Post(apiURL+"/journeys", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var created domain.Journey
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode journey: %w", err)
	}
	return created.ID, nil
}

func publish(client mqtt.Client, topic string, msg positionMessage) {
	payload, _ := json.Marshal(msg)
	token := client.Publish(topic, 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Printf("publish to %s failed: %v", topic, err)
		return
	}
	log.Printf("published to %s: %s", topic, payload)
}
