package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/internal/metrics"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/database"
)

type MonitorConfig struct {
	Interval       time.Duration
	StaleThreshold time.Duration
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{Interval: 30 * time.Second, StaleThreshold: 60 * time.Second}
}

// StaleMonitor periodically flags running journeys whose canonical position
// has gone stale. It only records health events; it never touches journeys.
type StaleMonitor struct {
	cfg      MonitorConfig
	journeys database.JourneyRepository
	health   database.HealthRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewStaleMonitor(cfg MonitorConfig, journeys database.JourneyRepository, health database.HealthRepository, logger *slog.Logger) *StaleMonitor {
	return &StaleMonitor{
		cfg:      cfg,
		journeys: journeys,
		health:   health,
		logger:   logger,
		now:      time.Now,
	}
}

// Run scans on every tick until ctx is done.
func (m *StaleMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := m.Scan(ctx); err != nil {
			m.logger.Error("stale scan failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Scan checks every running journey once and returns how many are stale.
func (m *StaleMonitor) Scan(ctx context.Context) (int, error) {
	running, err := m.journeys.ListRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("list running journeys: %w", err)
	}

	now := m.now()
	stale := 0
	for i := range running {
		j := &running[i]
		age, isStale := m.age(j, now)
		if isStale {
			stale++
		}
		if err := m.reconcile(ctx, j, age, isStale, now); err != nil {
			m.logger.Error("health event update failed", "journey_id", j.ID, "error", err)
		}
	}
	metrics.StaleJourneys.Set(float64(stale))
	return stale, nil
}

func (m *StaleMonitor) age(j *domain.Journey, now time.Time) (time.Duration, bool) {
	last := j.LastReportAt
	if j.Canonical != nil {
		last = j.Canonical.RecordedAt
	}
	if last.IsZero() {
		return 0, false
	}
	age := now.Sub(last)
	return age, age > m.cfg.StaleThreshold
}

func (m *StaleMonitor) reconcile(ctx context.Context, j *domain.Journey, age time.Duration, stale bool, now time.Time) error {
	open, err := m.health.FindOpen(ctx, j.ID, domain.HealthStaleGPS)
	if err != nil {
		return err
	}

	switch {
	case stale && open == nil:
		evt := &domain.HealthEvent{
			ID:          uuid.NewString(),
			Type:        domain.HealthStaleGPS,
			Severity:    severityFor(age, m.cfg.StaleThreshold),
			JourneyID:   j.ID,
			Description: fmt.Sprintf("no position update for %s", age.Truncate(time.Second)),
			DetectedAt:  now,
		}
		if err := m.health.Insert(ctx, evt); err != nil {
			return err
		}
		m.logger.Warn("journey position is stale",
			"journey_id", j.ID,
			"age_seconds", int(age.Seconds()),
			"severity", evt.Severity,
		)
	case !stale && open != nil:
		if err := m.health.Resolve(ctx, open.ID, now); err != nil {
			return err
		}
		m.logger.Info("journey position recovered", "journey_id", j.ID, "health_event_id", open.ID)
	}
	return nil
}

// severityFor escalates with how many thresholds have passed.
func severityFor(age, threshold time.Duration) domain.Severity {
	switch {
	case age > 10*threshold:
		return domain.SeverityCritical
	case age > 3*threshold:
		return domain.SeverityWarning
	default:
		return domain.SeverityInfo
	}
}
