package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/geo"
	"github.com/nandanugg/journey-tracker/module/journey/internal/metrics"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/cache"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/database"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/publisher"
)

const ingestFailedMessage = "location update failed, retrying"

type CoordinatorConfig struct {
	PersistTimeout time.Duration
	StaleThreshold time.Duration
	// MaxClockSkew is how far ahead of server time a report may be stamped.
	MaxClockSkew time.Duration
}

func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		PersistTimeout: 5 * time.Second,
		StaleThreshold: 60 * time.Second,
		MaxClockSkew:   2 * time.Minute,
	}
}

// Deps are the collaborators of a Coordinator. Cache and Publisher are
// optional; Now defaults to time.Now.
type Deps struct {
	Journeys   database.JourneyRepository
	Positions  database.PositionRepository
	Segments   database.SegmentRepository
	Orders     database.OrderRepository
	Cache      cache.StateCache
	Publisher  publisher.EventPublisher
	Geofence   *GeofenceEvaluator
	ETA        *ETAEstimator
	Aggregator *PositionAggregator
	Logger     *slog.Logger
	Now        func() time.Time
}

// Coordinator runs the per-journey update cycle: canonical selection,
// geofence, ETA, progress and status, one atomic persist, then the event
// bundle. Only one cycle per journey runs at a time.
type Coordinator struct {
	cfg   CoordinatorConfig
	deps  Deps
	locks *keyedMutex
}

func NewCoordinator(cfg CoordinatorConfig, deps Deps) *Coordinator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Coordinator{cfg: cfg, deps: deps, locks: newKeyedMutex()}
}

// ValidateReport rejects reports that must never reach the log.
func ValidateReport(r *domain.PositionReport) error {
	switch {
	case r == nil:
		return domain.NewAppError(domain.ErrCodeMissingField, "position report is required", nil)
	case r.JourneyID == "":
		return domain.NewAppError(domain.ErrCodeMissingField, "journey_id is required", nil)
	case r.SourceID == "":
		return domain.NewAppError(domain.ErrCodeMissingField, "source_id is required", nil)
	case r.Timestamp.IsZero():
		return domain.NewAppError(domain.ErrCodeMissingField, "timestamp is required", nil)
	case !r.SourceType.Valid():
		return domain.NewAppError(domain.ErrCodeUnknownSource, fmt.Sprintf("unknown source type %q", r.SourceType), nil)
	case !geo.ValidCoordinates(r.Point):
		return domain.NewAppError(domain.ErrCodeInvalidCoordinates, fmt.Sprintf("invalid coordinates %v", r.Point), nil)
	}
	for name, v := range map[string]*float64{"accuracy": r.Accuracy, "heading": r.Heading, "speed": r.Speed} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return domain.NewAppError(domain.ErrCodeInvalidCoordinates, name+" is not a finite number", nil)
		}
	}
	return nil
}

func (c *Coordinator) checkClockSkew(r *domain.PositionReport, now time.Time) error {
	if c.cfg.MaxClockSkew <= 0 || !r.Timestamp.After(now.Add(c.cfg.MaxClockSkew)) {
		return nil
	}
	return domain.NewAppError(domain.ErrCodeFutureTimestamp,
		fmt.Sprintf("timestamp is %s ahead of server time", r.Timestamp.Sub(now).Round(time.Second)), nil)
}

// CreateJourney registers a PENDING journey with all waypoints OPEN.
func (c *Coordinator) CreateJourney(ctx context.Context, j *domain.Journey) (*domain.Journey, error) {
	if err := validateJourney(j); err != nil {
		return nil, err
	}
	now := c.deps.Now()
	created := j.Clone()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.DepartureTime.IsZero() {
		created.DepartureTime = now
	}
	sort.SliceStable(created.Waypoints, func(a, b int) bool {
		return created.Waypoints[a].Sequence < created.Waypoints[b].Sequence
	})
	for i := range created.Waypoints {
		wp := &created.Waypoints[i]
		wp.Status = domain.WaypointOpen
		wp.ClosingSoonAt, wp.ClosedAt, wp.LockedAt = nil, nil, nil
	}
	created.Canonical = nil
	created.Status = domain.JourneyPending
	created.Progress = 0
	created.DelayMinutes = 0
	created.LastReportAt = time.Time{}
	created.Version = 1
	created.CreatedAt = now
	created.UpdatedAt = now

	if err := c.deps.Journeys.Create(ctx, created); err != nil {
		if domain.CodeOf(err) == domain.ErrCodeJourneyExists {
			return nil, err
		}
		return nil, domain.NewAppError(domain.ErrCodePersistence, "journey could not be created", err)
	}
	c.cacheState(ctx, created)
	c.deps.Logger.Info("journey created",
		"journey_id", created.ID,
		"route_id", created.RouteID,
		"waypoints", len(created.Waypoints),
	)
	return created, nil
}

func validateJourney(j *domain.Journey) error {
	if j == nil {
		return domain.NewAppError(domain.ErrCodeMissingField, "journey is required", nil)
	}
	if j.VehicleID == "" {
		return domain.NewAppError(domain.ErrCodeMissingField, "vehicle_id is required", nil)
	}
	if len(j.Waypoints) < 2 {
		return domain.NewAppError(domain.ErrCodeInvalidRoute, "a route needs at least two waypoints", nil)
	}
	ids := make(map[string]struct{}, len(j.Waypoints))
	seqs := make(map[int]struct{}, len(j.Waypoints))
	for _, wp := range j.Waypoints {
		if wp.ID == "" || wp.Name == "" {
			return domain.NewAppError(domain.ErrCodeMissingField, "waypoint id and name are required", nil)
		}
		if !geo.ValidCoordinates(wp.Point) {
			return domain.NewAppError(domain.ErrCodeInvalidCoordinates, fmt.Sprintf("waypoint %s has invalid coordinates", wp.ID), nil)
		}
		if !wp.Category.Valid() {
			return domain.NewAppError(domain.ErrCodeInvalidRoute, fmt.Sprintf("waypoint %s has unknown category %q", wp.ID, wp.Category), nil)
		}
		if _, dup := ids[wp.ID]; dup {
			return domain.NewAppError(domain.ErrCodeInvalidRoute, fmt.Sprintf("waypoint %s is listed twice", wp.ID), nil)
		}
		if _, dup := seqs[wp.Sequence]; dup {
			return domain.NewAppError(domain.ErrCodeInvalidRoute, fmt.Sprintf("sequence %d is used twice", wp.Sequence), nil)
		}
		ids[wp.ID] = struct{}{}
		seqs[wp.Sequence] = struct{}{}
	}
	return nil
}

// Submit ingests one position report and, when the canonical position moves,
// runs a full update cycle for its journey.
func (c *Coordinator) Submit(ctx context.Context, r *domain.PositionReport) (*domain.SubmitResult, error) {
	start := time.Now()
	defer metrics.ObserveCycleLatency(start)

	if err := ValidateReport(r); err != nil {
		metrics.ReportsRejected.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if err := c.checkClockSkew(r, c.deps.Now()); err != nil {
		metrics.ReportsRejected.WithLabelValues("future").Inc()
		c.deps.Logger.Warn("position report ahead of server clock",
			"journey_id", r.JourneyID,
			"source_id", r.SourceID,
			"timestamp", r.Timestamp,
		)
		return nil, err
	}
	metrics.ReportsReceived.WithLabelValues(string(r.SourceType)).Inc()

	unlock := c.locks.Lock(r.JourneyID)
	defer unlock()

	j, err := c.load(ctx, r.JourneyID)
	if err != nil {
		return nil, err
	}
	if j.Status.Terminal() {
		metrics.ReportsRejected.WithLabelValues("terminal").Inc()
		return nil, domain.ErrJourneyNotActive
	}

	dup, err := c.deps.Positions.Exists(ctx, r.SourceID, r.Timestamp)
	if err != nil {
		return nil, domain.NewAppError(domain.ErrCodePersistence, ingestFailedMessage, err)
	}
	if dup {
		metrics.ReportsRejected.WithLabelValues("duplicate").Inc()
		c.deps.Logger.Debug("duplicate position report dropped",
			"journey_id", r.JourneyID,
			"source_id", r.SourceID,
			"timestamp", r.Timestamp,
		)
		return &domain.SubmitResult{Duplicate: true}, nil
	}

	if !j.LastReportAt.IsZero() && r.Timestamp.Before(j.LastReportAt) {
		if _, err := c.deps.Positions.Append(ctx, r); err != nil {
			return nil, domain.NewAppError(domain.ErrCodePersistence, ingestFailedMessage, err)
		}
		metrics.ReportsRejected.WithLabelValues("out_of_order").Inc()
		c.deps.Logger.Info("out-of-order position report not applied",
			"journey_id", r.JourneyID,
			"source_id", r.SourceID,
			"timestamp", r.Timestamp,
			"last_report_at", j.LastReportAt,
		)
		return &domain.SubmitResult{OutOfOrder: true}, nil
	}

	now := c.deps.Now()
	canonical, changed, err := c.deps.Aggregator.Select(ctx, j, r, now)
	if err != nil {
		return nil, domain.NewAppError(domain.ErrCodePersistence, ingestFailedMessage, err)
	}
	if !changed {
		inserted, err := c.deps.Positions.Append(ctx, r)
		if err != nil {
			return nil, domain.NewAppError(domain.ErrCodePersistence, ingestFailedMessage, err)
		}
		if !inserted {
			metrics.ReportsRejected.WithLabelValues("duplicate").Inc()
			return &domain.SubmitResult{Duplicate: true}, nil
		}
		return &domain.SubmitResult{Accepted: true}, nil
	}

	segments, err := c.deps.Segments.SegmentAverages(ctx, j.RouteID)
	if err != nil {
		c.deps.Logger.Warn("segment history unavailable, using unscaled estimates",
			"journey_id", j.ID,
			"route_id", j.RouteID,
			"error", err,
		)
		segments = nil
	}

	next, evt, etas := c.cycle(j, r, canonical, segments, now)

	persistCtx, cancel := context.WithTimeout(ctx, c.cfg.PersistTimeout)
	defer cancel()
	err = c.deps.Journeys.SaveCycle(persistCtx, &database.CycleWrite{
		Report:          r,
		Journey:         next,
		ETAs:            etas,
		ExpectedVersion: j.Version,
	})
	if errors.Is(err, domain.ErrDuplicateReport) {
		metrics.ReportsRejected.WithLabelValues("duplicate").Inc()
		c.deps.Logger.Debug("duplicate position report dropped at commit",
			"journey_id", r.JourneyID,
			"source_id", r.SourceID,
			"timestamp", r.Timestamp,
		)
		return &domain.SubmitResult{Duplicate: true}, nil
	}
	if err != nil {
		metrics.PersistFailures.Inc()
		c.deps.Logger.Error("update cycle not persisted",
			"journey_id", j.ID,
			"source_id", r.SourceID,
			"error", err,
		)
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		return nil, domain.NewAppError(domain.ErrCodePersistence, ingestFailedMessage, err)
	}

	metrics.CanonicalChanges.Inc()
	for _, t := range evt.WaypointTransitions {
		metrics.WaypointTransitions.WithLabelValues(string(t.To)).Inc()
	}
	c.attachPendingOrders(ctx, evt)
	c.cacheState(ctx, next)
	c.publish(ctx, evt)

	return &domain.SubmitResult{Accepted: true, CanonicalChanged: true}, nil
}

// cycle computes the next journey state in memory. j is never modified.
func (c *Coordinator) cycle(j *domain.Journey, r *domain.PositionReport, pos *domain.CanonicalPosition, segments map[domain.SegmentKey]float64, now time.Time) (*domain.Journey, *domain.CycleEvent, []domain.ETAPrediction) {
	next := j.Clone()
	next.Canonical = pos
	next.LastReportAt = r.Timestamp
	if r.Timestamp.After(now) {
		next.LastReportAt = now
	}
	next.UpdatedAt = now
	next.Version = j.Version + 1
	if next.Status == domain.JourneyPending {
		next.Status = domain.JourneyActive
	}

	fence := c.deps.Geofence.Evaluate(next, pos.Point, c.deps.ETA.ResolveSpeed(pos.Speed), now)

	est := c.deps.ETA.Estimate(ETAInput{
		Journey:  next,
		Position: pos.Point,
		SpeedKmh: pos.Speed,
		DataAge:  now.Sub(pos.RecordedAt),
		Segments: segments,
		Now:      now,
	})
	for i := range next.Waypoints {
		if m, ok := est.Minutes[next.Waypoints[i].ID]; ok {
			next.Waypoints[i].MinutesToArrival = m
		}
	}

	next.DelayMinutes = est.MaxDelay
	next.Status = c.deps.ETA.JourneyStatus(next.Status, est.MaxDelay)

	if n := len(next.Waypoints); n > 0 {
		first, last := next.Waypoints[0], next.Waypoints[n-1]
		progress := geo.ProgressFraction(first.Point, last.Point, pos.Point) * 100
		next.Progress = math.Max(next.Progress, progress)
		if last.Locked() {
			next.Status = domain.JourneyCompleted
			next.Progress = 100
		}
	}

	evt := &domain.CycleEvent{
		JourneyID:           next.ID,
		Timestamp:           now,
		WaypointTransitions: fence.Transitions,
		Locked:              fence.Locked,
		DelayChanged:        next.DelayMinutes != j.DelayMinutes || (next.Status == domain.JourneyDelayed) != (j.Status == domain.JourneyDelayed),
		DelayMinutes:        next.DelayMinutes,
		Progress:            next.Progress,
		PreviousStatus:      j.Status,
		NewStatus:           next.Status,
	}
	for _, p := range est.Predictions {
		evt.ETAChanges = append(evt.ETAChanges, domain.ETAChange{
			WaypointID:       p.WaypointID,
			PredictedArrival: p.PredictedArrival,
			DelayMinutes:     p.DelayMinutes,
			Confidence:       p.Confidence,
		})
	}
	return next, evt, est.Predictions
}

func (c *Coordinator) attachPendingOrders(ctx context.Context, evt *domain.CycleEvent) {
	if c.deps.Orders == nil {
		return
	}
	for i := range evt.Locked {
		ids, err := c.deps.Orders.PendingOrderIDs(ctx, evt.JourneyID, evt.Locked[i].WaypointID)
		if err != nil {
			c.deps.Logger.Error("pending orders lookup failed",
				"journey_id", evt.JourneyID,
				"waypoint_id", evt.Locked[i].WaypointID,
				"error", err,
			)
			continue
		}
		evt.Locked[i].PendingOrderIDs = ids
	}
}

// State returns the query view of a journey, served from the cache when
// possible. Staleness is always computed against the current time.
func (c *Coordinator) State(ctx context.Context, journeyID string) (*domain.JourneyState, error) {
	if c.deps.Cache != nil {
		st, err := c.deps.Cache.Get(ctx, journeyID)
		if err != nil {
			c.deps.Logger.Warn("state cache read failed", "journey_id", journeyID, "error", err)
		}
		if st != nil {
			c.markStaleness(st)
			return st, nil
		}
	}

	j, err := c.load(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	c.cacheState(ctx, j)
	return c.stateOf(j), nil
}

func (c *Coordinator) stateOf(j *domain.Journey) *domain.JourneyState {
	st := &domain.JourneyState{
		JourneyID:    j.ID,
		Progress:     j.Progress,
		Status:       j.Status,
		DelayMinutes: j.DelayMinutes,
		Canonical:    j.Canonical,
		Waypoints:    make([]domain.WaypointState, 0, len(j.Waypoints)),
	}
	for _, wp := range j.Waypoints {
		st.Waypoints = append(st.Waypoints, domain.WaypointState{
			ID:         wp.ID,
			Name:       wp.Name,
			Status:     wp.Status,
			DistanceKm: wp.DistanceKm,
			ETAMinutes: wp.MinutesToArrival,
		})
	}
	c.markStaleness(st)
	return st
}

func (c *Coordinator) markStaleness(st *domain.JourneyState) {
	st.Stale = false
	st.DataAgeSeconds = 0
	if st.Canonical == nil {
		return
	}
	age := c.deps.Now().Sub(st.Canonical.RecordedAt)
	if age < 0 {
		age = 0
	}
	st.DataAgeSeconds = age.Seconds()
	st.Stale = st.Status.Running() && age > c.cfg.StaleThreshold
}

func (c *Coordinator) Complete(ctx context.Context, journeyID string) (*domain.JourneyState, error) {
	return c.finish(ctx, journeyID, domain.JourneyCompleted)
}

func (c *Coordinator) Cancel(ctx context.Context, journeyID string) (*domain.JourneyState, error) {
	return c.finish(ctx, journeyID, domain.JourneyCancelled)
}

func (c *Coordinator) finish(ctx context.Context, journeyID string, status domain.JourneyStatus) (*domain.JourneyState, error) {
	unlock := c.locks.Lock(journeyID)
	defer unlock()

	j, err := c.load(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	if j.Status.Terminal() {
		return nil, domain.ErrJourneyNotActive
	}

	c.invalidate(ctx, journeyID)

	persistCtx, cancel := context.WithTimeout(ctx, c.cfg.PersistTimeout)
	defer cancel()
	if err := c.deps.Journeys.UpdateStatus(persistCtx, journeyID, status, j.Version); err != nil {
		metrics.PersistFailures.Inc()
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		return nil, domain.NewAppError(domain.ErrCodePersistence, "journey status could not be saved", err)
	}

	now := c.deps.Now()
	next := j.Clone()
	next.Status = status
	next.Version = j.Version + 1
	next.UpdatedAt = now
	if status == domain.JourneyCompleted {
		next.Progress = 100
	}

	c.cacheState(ctx, next)
	c.publish(ctx, &domain.CycleEvent{
		JourneyID:      next.ID,
		Timestamp:      now,
		DelayMinutes:   next.DelayMinutes,
		Progress:       next.Progress,
		PreviousStatus: j.Status,
		NewStatus:      next.Status,
	})
	c.deps.Logger.Info("journey finished", "journey_id", journeyID, "status", status)
	return c.stateOf(next), nil
}

func (c *Coordinator) load(ctx context.Context, journeyID string) (*domain.Journey, error) {
	j, err := c.deps.Journeys.Get(ctx, journeyID)
	if err != nil {
		if errors.Is(err, domain.ErrJourneyNotFound) {
			return nil, err
		}
		return nil, domain.NewAppError(domain.ErrCodePersistence, ingestFailedMessage, err)
	}
	return j, nil
}

func (c *Coordinator) cacheState(ctx context.Context, j *domain.Journey) {
	if c.deps.Cache == nil {
		return
	}
	if err := c.deps.Cache.Set(ctx, c.stateOf(j)); err != nil {
		c.deps.Logger.Warn("state cache write failed", "journey_id", j.ID, "error", err)
		c.invalidate(ctx, j.ID)
	}
}

// invalidate drops the cached state so State falls back to postgres.
func (c *Coordinator) invalidate(ctx context.Context, journeyID string) {
	if c.deps.Cache == nil {
		return
	}
	if err := c.deps.Cache.Delete(ctx, journeyID); err != nil {
		c.deps.Logger.Error("state cache invalidation failed", "journey_id", journeyID, "error", err)
	}
}

func (c *Coordinator) publish(ctx context.Context, evt *domain.CycleEvent) {
	if c.deps.Publisher == nil {
		return
	}
	if err := c.deps.Publisher.Publish(ctx, evt); err != nil {
		c.deps.Logger.Error("event bundle not published", "journey_id", evt.JourneyID, "error", err)
	}
}
