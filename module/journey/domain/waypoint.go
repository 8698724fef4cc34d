package domain

import "time"

type WaypointStatus string

const (
	WaypointOpen        WaypointStatus = "OPEN"
	WaypointClosingSoon WaypointStatus = "CLOSING_SOON"
	WaypointLocked      WaypointStatus = "LOCKED"
)

// rank orders statuses along the only permitted direction of travel.
func (s WaypointStatus) rank() int {
	switch s {
	case WaypointOpen:
		return 0
	case WaypointClosingSoon:
		return 1
	case WaypointLocked:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether moving from s to next is a forward step.
func (s WaypointStatus) CanAdvanceTo(next WaypointStatus) bool {
	return s.rank() >= 0 && next.rank() > s.rank()
}

type Category string

const (
	CategoryMajor  Category = "major"
	CategoryMedium Category = "medium"
	CategoryMinor  Category = "minor"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryMajor, CategoryMedium, CategoryMinor:
		return true
	}
	return false
}

type Waypoint struct {
	ID                      string         `json:"id"`
	Name                    string         `json:"name"`
	Point                   Point          `json:"position"`
	Category                Category       `json:"category"`
	Sequence                int            `json:"sequence"`
	Status                  WaypointStatus `json:"status"`
	DistanceKm              float64        `json:"distance_km"`
	MinutesToArrival        float64        `json:"minutes_to_arrival"`
	CloseAtDistanceKm       float64        `json:"close_at_distance_km"`
	CloseAtMinutesRemaining float64        `json:"close_at_minutes_remaining"`
	ScheduledOffsetMinutes  float64        `json:"scheduled_offset_minutes"`
	ClosingSoonAt           *time.Time     `json:"closing_soon_at,omitempty"`
	ClosedAt                *time.Time     `json:"closed_at,omitempty"`
	LockedAt                *time.Time     `json:"locked_at,omitempty"`
}

func (w *Waypoint) Locked() bool {
	return w.Status == WaypointLocked
}
