package domain

import "time"

type ETAPrediction struct {
	JourneyID        string    `json:"journey_id"`
	WaypointID       string    `json:"waypoint_id"`
	PredictedArrival time.Time `json:"predicted_arrival"`
	Confidence       float64   `json:"confidence"`
	IsDelayed        bool      `json:"is_delayed"`
	DelayMinutes     int       `json:"delay_minutes"`
	CalculatedAt     time.Time `json:"calculated_at"`
}

// SegmentKey identifies a route segment between two consecutive waypoints.
type SegmentKey struct {
	From string
	To   string
}
