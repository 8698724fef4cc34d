package service

import (
	"math"
	"time"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/geo"
)

type ETAConfig struct {
	DefaultSpeedKmh         float64
	DelayGraceMinutes       int
	JourneyDelayedMinutes   int
	ConfidenceWindowMinutes float64
	MinConfidence           float64
	MaxConfidence           float64
}

func DefaultETAConfig() ETAConfig {
	return ETAConfig{
		DefaultSpeedKmh:         60,
		DelayGraceMinutes:       5,
		JourneyDelayedMinutes:   15,
		ConfidenceWindowMinutes: 30,
		MinConfidence:           0.3,
		MaxConfidence:           0.95,
	}
}

type ETAEstimator struct {
	cfg ETAConfig
}

func NewETAEstimator(cfg ETAConfig) *ETAEstimator {
	return &ETAEstimator{cfg: cfg}
}

type ETAInput struct {
	Journey  *domain.Journey
	Position domain.Point
	SpeedKmh *float64
	DataAge  time.Duration
	// Segments maps (from, to) waypoint IDs to historical average minutes.
	Segments map[domain.SegmentKey]float64
	Now      time.Time
}

type ETAResult struct {
	Predictions []domain.ETAPrediction
	// Minutes holds the accumulated minutes-to-arrival per waypoint ID.
	Minutes  map[string]float64
	MaxDelay int
}

// Estimate predicts arrival at every OPEN or CLOSING_SOON waypoint, in route
// order. Predicted arrivals never decrease along the route.
func (e *ETAEstimator) Estimate(in ETAInput) ETAResult {
	res := ETAResult{Minutes: map[string]float64{}}
	if !geo.ValidCoordinates(in.Position) {
		return res
	}

	speed := e.ResolveSpeed(in.SpeedKmh)
	confidence := e.Confidence(in.DataAge)
	base := in.Journey.DepartureTime
	if base.IsZero() {
		base = in.Now
	}

	var accumulated float64
	waypoints := in.Journey.Waypoints
	for i := range waypoints {
		wp := &waypoints[i]
		if wp.Locked() || !geo.ValidCoordinates(wp.Point) {
			continue
		}

		adjusted := geo.Distance(in.Position, wp.Point) / speed * 60
		if i > 0 {
			adjusted *= e.historicalFactor(&waypoints[i-1], wp, in.Segments)
		}
		accumulated = math.Max(accumulated, adjusted)

		predicted := in.Now.Add(minutesToDuration(accumulated))
		scheduled := base.Add(minutesToDuration(wp.ScheduledOffsetMinutes))
		delay := int(math.Round(predicted.Sub(scheduled).Minutes()))
		if delay < 0 {
			delay = 0
		}

		res.Minutes[wp.ID] = accumulated
		res.Predictions = append(res.Predictions, domain.ETAPrediction{
			JourneyID:        in.Journey.ID,
			WaypointID:       wp.ID,
			PredictedArrival: predicted,
			Confidence:       confidence,
			IsDelayed:        delay > e.cfg.DelayGraceMinutes,
			DelayMinutes:     delay,
			CalculatedAt:     in.Now,
		})
		if delay > res.MaxDelay {
			res.MaxDelay = delay
		}
	}
	return res
}

// historicalFactor scales the estimate by how long the segment took
// historically compared to its schedule. Missing data yields 1.
func (e *ETAEstimator) historicalFactor(prev, wp *domain.Waypoint, segments map[domain.SegmentKey]float64) float64 {
	avg, ok := segments[domain.SegmentKey{From: prev.ID, To: wp.ID}]
	if !ok || avg <= 0 {
		return 1
	}
	scheduled := wp.ScheduledOffsetMinutes - prev.ScheduledOffsetMinutes
	if scheduled <= 0 {
		return 1
	}
	return avg / scheduled
}

// ResolveSpeed substitutes the default speed for missing or non-positive values.
func (e *ETAEstimator) ResolveSpeed(speed *float64) float64 {
	if speed == nil || *speed <= 0 || math.IsNaN(*speed) || math.IsInf(*speed, 0) {
		return e.cfg.DefaultSpeedKmh
	}
	return *speed
}

// Confidence decays linearly with data age and is clamped to [min, max].
func (e *ETAEstimator) Confidence(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return geo.Clamp(1-age.Minutes()/e.cfg.ConfidenceWindowMinutes, e.cfg.MinConfidence, e.cfg.MaxConfidence)
}

// JourneyStatus derives the delay status for the next cycle. Unlike waypoint
// locking this may move back from DELAYED to ACTIVE.
func (e *ETAEstimator) JourneyStatus(current domain.JourneyStatus, maxDelay int) domain.JourneyStatus {
	if current.Terminal() {
		return current
	}
	if maxDelay > e.cfg.JourneyDelayedMinutes {
		return domain.JourneyDelayed
	}
	return domain.JourneyActive
}

func minutesToDuration(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
