package domain

import "time"

type SourceType string

const (
	SourceVehicle   SourceType = "vehicle"
	SourcePassenger SourceType = "passenger"
	SourceAgent     SourceType = "agent"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceVehicle, SourcePassenger, SourceAgent:
		return true
	}
	return false
}

// PositionReport is one immutable entry of the append-only position log.
// Accuracy is in meters, Heading in degrees and Speed in km/h; nil means the
// source did not report the value.
type PositionReport struct {
	JourneyID  string     `json:"journey_id"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`
	Point      Point      `json:"position"`
	Accuracy   *float64   `json:"accuracy,omitempty"`
	Heading    *float64   `json:"heading,omitempty"`
	Speed      *float64   `json:"speed,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// CanonicalPosition is the single authoritative position of a journey.
type CanonicalPosition struct {
	Point      Point      `json:"position"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`
	Accuracy   *float64   `json:"accuracy,omitempty"`
	Heading    *float64   `json:"heading,omitempty"`
	Speed      *float64   `json:"speed,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
}

type HistoryQuery struct {
	JourneyID string
	Start     time.Time
	End       time.Time
}

func FloatPtr(v float64) *float64 { return &v }
