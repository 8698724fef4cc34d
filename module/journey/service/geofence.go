package service

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/geo"
	"github.com/nandanugg/journey-tracker/module/journey/internal/metrics"
)

type GeofenceConfig struct {
	MajorRadiusKm  float64
	MediumRadiusKm float64
	MinorRadiusKm  float64
	LockDistanceKm float64
}

func DefaultGeofenceConfig() GeofenceConfig {
	return GeofenceConfig{
		MajorRadiusKm:  2.0,
		MediumRadiusKm: 1.0,
		MinorRadiusKm:  0.5,
		LockDistanceKm: 0.5,
	}
}

type GeofenceEvaluator struct {
	cfg    GeofenceConfig
	logger *slog.Logger
}

func NewGeofenceEvaluator(cfg GeofenceConfig, logger *slog.Logger) *GeofenceEvaluator {
	return &GeofenceEvaluator{cfg: cfg, logger: logger}
}

type GeofenceResult struct {
	Transitions []domain.WaypointTransition
	Locked      []domain.LockNotice
	Failed      []string
}

// Evaluate advances every non-locked waypoint of j against pos. Waypoints are
// mutated in place, so j must be the cycle's private copy. speedKmh must
// already be resolved to a positive value.
func (e *GeofenceEvaluator) Evaluate(j *domain.Journey, pos domain.Point, speedKmh float64, now time.Time) GeofenceResult {
	var res GeofenceResult
	for i := range j.Waypoints {
		wp := &j.Waypoints[i]
		if wp.Locked() {
			continue
		}
		transitions, err := e.EvaluateWaypoint(wp, pos, speedKmh, now)
		if err != nil {
			metrics.GeofenceFailures.Inc()
			e.logger.Warn("geofence evaluation skipped",
				"journey_id", j.ID,
				"waypoint_id", wp.ID,
				"error", err,
			)
			res.Failed = append(res.Failed, wp.ID)
			continue
		}
		res.Transitions = append(res.Transitions, transitions...)
		if wp.Locked() {
			res.Locked = append(res.Locked, domain.LockNotice{
				WaypointID:   wp.ID,
				WaypointName: wp.Name,
				LockedAt:     *wp.LockedAt,
			})
		}
	}
	return res
}

// EvaluateWaypoint applies the OPEN -> CLOSING_SOON -> LOCKED rules to a single
// waypoint. On error the waypoint is left untouched.
func (e *GeofenceEvaluator) EvaluateWaypoint(wp *domain.Waypoint, pos domain.Point, speedKmh float64, now time.Time) ([]domain.WaypointTransition, error) {
	if !geo.ValidCoordinates(pos) {
		return nil, fmt.Errorf("position %v: invalid coordinates", pos)
	}
	if !geo.ValidCoordinates(wp.Point) {
		return nil, fmt.Errorf("waypoint %s: invalid coordinates %v", wp.ID, wp.Point)
	}
	if wp.Locked() {
		return nil, nil
	}

	distKm := geo.Distance(pos, wp.Point)
	minutes := distKm / speedKmh * 60

	var out []domain.WaypointTransition
	advance := func(to domain.WaypointStatus) {
		out = append(out, domain.WaypointTransition{WaypointID: wp.ID, From: wp.Status, To: to, At: now})
		wp.Status = to
	}

	if wp.Status == domain.WaypointOpen && e.shouldClose(wp, distKm, minutes) {
		at := now
		wp.ClosingSoonAt = &at
		advance(domain.WaypointClosingSoon)
	}

	if wp.Status == domain.WaypointClosingSoon && distKm <= e.cfg.LockDistanceKm {
		at := now
		wp.ClosedAt = &at
		wp.LockedAt = &at
		advance(domain.WaypointLocked)
	}

	wp.DistanceKm = distKm
	wp.MinutesToArrival = minutes
	if wp.Locked() {
		wp.DistanceKm = 0
		wp.MinutesToArrival = 0
	}
	return out, nil
}

// shouldClose is true when either configured trigger fires.
func (e *GeofenceEvaluator) shouldClose(wp *domain.Waypoint, distKm, minutes float64) bool {
	if distKm <= e.CloseDistanceKm(wp) {
		return true
	}
	return wp.CloseAtMinutesRemaining > 0 && minutes <= wp.CloseAtMinutesRemaining
}

// CloseDistanceKm is the waypoint's explicit close distance, or the radius of
// its category when none is set.
func (e *GeofenceEvaluator) CloseDistanceKm(wp *domain.Waypoint) float64 {
	if wp.CloseAtDistanceKm > 0 {
		return wp.CloseAtDistanceKm
	}
	switch wp.Category {
	case domain.CategoryMajor:
		return e.cfg.MajorRadiusKm
	case domain.CategoryMedium:
		return e.cfg.MediumRadiusKm
	default:
		return e.cfg.MinorRadiusKm
	}
}
