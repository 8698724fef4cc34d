package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type RouteWaypoint struct {
	ID                     string  `yaml:"id" json:"id" validate:"required"`
	Name                   string  `yaml:"name" json:"name" validate:"required"`
	Latitude               float64 `yaml:"latitude" json:"latitude" validate:"gte=-90,lte=90"`
	Longitude              float64 `yaml:"longitude" json:"longitude" validate:"gte=-180,lte=180"`
	Category               string  `yaml:"category" json:"category" validate:"oneof=major medium minor"`
	Sequence               int     `yaml:"sequence" json:"sequence" validate:"gte=0"`
	ScheduledOffsetMinutes float64 `yaml:"scheduled_offset_minutes" json:"scheduled_offset_minutes" validate:"gte=0"`
}

// Route is a simulator fixture: a journey to create and drive.
type Route struct {
	RouteID    string          `yaml:"route_id" validate:"required"`
	VehicleID  string          `yaml:"vehicle_id" validate:"required"`
	SpeedKmh   float64         `yaml:"speed_kmh" validate:"gt=0"`
	Interval   time.Duration   `yaml:"interval" validate:"gt=0"`
	Passengers int             `yaml:"passengers" validate:"gte=0"`
	Waypoints  []RouteWaypoint `yaml:"waypoints" validate:"min=2,dive"`
}

func LoadRoute(path string) (*Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route: %w", err)
	}
	return ParseRoute(data)
}

func ParseRoute(data []byte) (*Route, error) {
	route := Route{SpeedKmh: 60, Interval: 5 * time.Second}
	if err := yaml.Unmarshal(data, &route); err != nil {
		return nil, fmt.Errorf("parse route: %w", err)
	}
	if err := validator.New().Struct(route); err != nil {
		return nil, fmt.Errorf("validate route: %w", err)
	}
	return &route, nil
}
