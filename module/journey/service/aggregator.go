package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/database"
)

const (
	StrategyLatest   = "latest"
	StrategyWeighted = "weighted"
)

// defaultAccuracyMeters weights reports that carry no accuracy.
const defaultAccuracyMeters = 50.0

type AggregatorConfig struct {
	Window   time.Duration
	Strategy string
}

func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{Window: 60 * time.Second, Strategy: StrategyLatest}
}

// PositionAggregator decides which position is authoritative for a journey.
type PositionAggregator struct {
	cfg       AggregatorConfig
	positions database.PositionRepository
}

func NewPositionAggregator(cfg AggregatorConfig, positions database.PositionRepository) *PositionAggregator {
	return &PositionAggregator{cfg: cfg, positions: positions}
}

// Select returns the canonical position after r is taken into account and
// whether it differs from the journey's current one. now is the server time
// of the cycle.
func (a *PositionAggregator) Select(ctx context.Context, j *domain.Journey, r *domain.PositionReport, now time.Time) (*domain.CanonicalPosition, bool, error) {
	if r.SourceType == domain.SourceVehicle {
		next := canonicalFrom(r)
		return next, !sameCanonical(j.Canonical, next), nil
	}

	// A vehicle fix inside the window outranks any indirect source. A report
	// stamped ahead of the server clock is measured from now instead.
	ref := r.Timestamp
	if now.Before(ref) {
		ref = now
	}
	if j.Canonical != nil && j.Canonical.SourceType == domain.SourceVehicle &&
		ref.Sub(j.Canonical.RecordedAt) <= a.cfg.Window {
		return j.Canonical, false, nil
	}

	recent, err := a.positions.Recent(ctx, r.JourneyID, r.Timestamp.Add(-a.cfg.Window))
	if err != nil {
		return nil, false, fmt.Errorf("recent positions: %w", err)
	}
	window := make([]domain.PositionReport, 0, len(recent)+1)
	for _, p := range recent {
		if p.SourceType != domain.SourceVehicle && !p.Timestamp.After(r.Timestamp) {
			window = append(window, p)
		}
	}
	window = append(window, *r)

	var next *domain.CanonicalPosition
	if a.cfg.Strategy == StrategyWeighted {
		next = weightedCentroid(window)
	} else {
		next = canonicalFrom(mostRecent(window))
	}
	return next, !sameCanonical(j.Canonical, next), nil
}

func mostRecent(reports []domain.PositionReport) *domain.PositionReport {
	latest := &reports[0]
	for i := range reports[1:] {
		p := &reports[i+1]
		if !p.Timestamp.Before(latest.Timestamp) {
			latest = p
		}
	}
	return latest
}

// weightedCentroid averages the window weighting each report by the inverse
// of its accuracy radius. Metadata comes from the most recent report.
func weightedCentroid(reports []domain.PositionReport) *domain.CanonicalPosition {
	var sumW, lat, lng float64
	for _, p := range reports {
		acc := defaultAccuracyMeters
		if p.Accuracy != nil && *p.Accuracy > 0 {
			acc = *p.Accuracy
		}
		w := 1 / acc
		sumW += w
		lat += p.Point.Lat * w
		lng += p.Point.Lng * w
	}
	c := canonicalFrom(mostRecent(reports))
	c.Point = domain.Point{Lat: lat / sumW, Lng: lng / sumW}
	return c
}

func canonicalFrom(r *domain.PositionReport) *domain.CanonicalPosition {
	return &domain.CanonicalPosition{
		Point:      r.Point,
		SourceType: r.SourceType,
		SourceID:   r.SourceID,
		Accuracy:   r.Accuracy,
		Heading:    r.Heading,
		Speed:      r.Speed,
		RecordedAt: r.Timestamp,
	}
}

func sameCanonical(a, b *domain.CanonicalPosition) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Point == b.Point && a.SourceID == b.SourceID && a.RecordedAt.Equal(b.RecordedAt)
}
