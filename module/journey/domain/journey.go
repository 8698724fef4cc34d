package domain

import "time"

type JourneyStatus string

const (
	JourneyPending   JourneyStatus = "PENDING"
	JourneyActive    JourneyStatus = "ACTIVE"
	JourneyDelayed   JourneyStatus = "DELAYED"
	JourneyCompleted JourneyStatus = "COMPLETED"
	JourneyCancelled JourneyStatus = "CANCELLED"
)

func (s JourneyStatus) Terminal() bool {
	return s == JourneyCompleted || s == JourneyCancelled
}

// Running is true for the statuses in which position updates are applied and
// progress must not decrease.
func (s JourneyStatus) Running() bool {
	return s == JourneyActive || s == JourneyDelayed
}

type Journey struct {
	ID            string             `json:"id"`
	RouteID       string             `json:"route_id"`
	VehicleID     string             `json:"vehicle_id"`
	Waypoints     []Waypoint         `json:"waypoints"`
	Canonical     *CanonicalPosition `json:"canonical,omitempty"`
	Progress      float64            `json:"progress"`
	Status        JourneyStatus      `json:"status"`
	DelayMinutes  int                `json:"delay_minutes"`
	DepartureTime time.Time          `json:"departure_time"`
	LastReportAt  time.Time          `json:"last_report_at"`
	Version       int64              `json:"version"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Clone returns a deep copy so a cycle can mutate the journey without touching
// the caller's value until the cycle is committed.
func (j *Journey) Clone() *Journey {
	c := *j
	c.Waypoints = make([]Waypoint, len(j.Waypoints))
	copy(c.Waypoints, j.Waypoints)
	if j.Canonical != nil {
		cp := *j.Canonical
		c.Canonical = &cp
	}
	return &c
}

// WaypointState is the per-waypoint view returned by State queries.
type WaypointState struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Status     WaypointStatus `json:"status"`
	DistanceKm float64        `json:"distance_km"`
	ETAMinutes float64        `json:"eta_minutes"`
}

type JourneyState struct {
	JourneyID      string             `json:"journey_id"`
	Progress       float64            `json:"progress"`
	Status         JourneyStatus      `json:"status"`
	DelayMinutes   int                `json:"delay_minutes"`
	Waypoints      []WaypointState    `json:"waypoints"`
	Canonical      *CanonicalPosition `json:"canonical,omitempty"`
	Stale          bool               `json:"stale"`
	DataAgeSeconds float64            `json:"data_age_seconds"`
}

type SubmitResult struct {
	Accepted         bool `json:"accepted"`
	CanonicalChanged bool `json:"canonical_position_changed"`
	Duplicate        bool `json:"duplicate,omitempty"`
	OutOfOrder       bool `json:"out_of_order,omitempty"`
}
