package domain

import "time"

type WaypointTransition struct {
	WaypointID string         `json:"waypoint_id"`
	From       WaypointStatus `json:"from"`
	To         WaypointStatus `json:"to"`
	At         time.Time      `json:"at"`
}

// LockNotice is the notice emitted when a waypoint closes for ordering.
// PendingOrderIDs lists the dependent orders the order subsystem must handle.
type LockNotice struct {
	WaypointID      string    `json:"waypoint_id"`
	WaypointName    string    `json:"waypoint_name"`
	LockedAt        time.Time `json:"locked_at"`
	PendingOrderIDs []string  `json:"pending_order_ids"`
}

type ETAChange struct {
	WaypointID       string    `json:"waypoint_id"`
	PredictedArrival time.Time `json:"predicted_arrival"`
	DelayMinutes     int       `json:"delay_minutes"`
	Confidence       float64   `json:"confidence"`
}

// CycleEvent is the bundle published after every committed update cycle.
type CycleEvent struct {
	JourneyID           string               `json:"journey_id"`
	Timestamp           time.Time            `json:"timestamp"`
	WaypointTransitions []WaypointTransition `json:"waypoint_transitions"`
	ETAChanges          []ETAChange          `json:"eta_changes"`
	Locked              []LockNotice         `json:"locked,omitempty"`
	DelayChanged        bool                 `json:"delay_changed"`
	DelayMinutes        int                  `json:"delay_minutes"`
	Progress            float64              `json:"progress"`
	PreviousStatus      JourneyStatus        `json:"previous_status"`
	NewStatus           JourneyStatus        `json:"new_status"`
}

type HealthEventType string

const HealthStaleGPS HealthEventType = "stale_gps"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type HealthEvent struct {
	ID          string          `json:"id"`
	Type        HealthEventType `json:"type"`
	Severity    Severity        `json:"severity"`
	JourneyID   string          `json:"journey_id"`
	Description string          `json:"description"`
	Resolved    bool            `json:"resolved"`
	DetectedAt  time.Time       `json:"detected_at"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
}
