package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/geo"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/database"
)

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// northOf returns the point km kilometres due north of p.
func northOf(p domain.Point, km float64) domain.Point {
	return domain.Point{Lat: p.Lat + km/(geo.EarthRadiusKm*math.Pi/180), Lng: p.Lng}
}

type fakePositions struct {
	mu        sync.Mutex
	reports   []domain.PositionReport
	existsErr error
	appendErr error
}

func posKey(sourceID string, ts time.Time) string {
	return fmt.Sprintf("%s|%d", sourceID, ts.UnixNano())
}

func (f *fakePositions) has(sourceID string, ts time.Time) bool {
	for _, r := range f.reports {
		if posKey(r.SourceID, r.Timestamp) == posKey(sourceID, ts) {
			return true
		}
	}
	return false
}

func (f *fakePositions) Exists(_ context.Context, sourceID string, ts time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.has(sourceID, ts), nil
}

func (f *fakePositions) Append(_ context.Context, r *domain.PositionReport) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return false, f.appendErr
	}
	if f.has(r.SourceID, r.Timestamp) {
		return false, nil
	}
	f.reports = append(f.reports, *r)
	return true, nil
}

func (f *fakePositions) Recent(_ context.Context, journeyID string, since time.Time) ([]domain.PositionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PositionReport
	for _, r := range f.reports {
		if r.JourneyID == journeyID && !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakePositions) Latest(_ context.Context, journeyID string) (*domain.PositionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.PositionReport
	for i := range f.reports {
		r := &f.reports[i]
		if r.JourneyID == journeyID && (latest == nil || r.Timestamp.After(latest.Timestamp)) {
			latest = r
		}
	}
	if latest == nil {
		return nil, domain.ErrNoPositions
	}
	cp := *latest
	return &cp, nil
}

func (f *fakePositions) History(_ context.Context, q *domain.HistoryQuery) ([]domain.PositionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PositionReport
	for _, r := range f.reports {
		if r.JourneyID == q.JourneyID && !r.Timestamp.Before(q.Start) && !r.Timestamp.After(q.End) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (f *fakePositions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

type fakeJourneys struct {
	mu        sync.Mutex
	journeys  map[string]*domain.Journey
	positions *fakePositions
	writes    []database.CycleWrite
	saveErr   error
	getErr    error
}

func newFakeJourneys(positions *fakePositions, js ...*domain.Journey) *fakeJourneys {
	f := &fakeJourneys{journeys: map[string]*domain.Journey{}, positions: positions}
	for _, j := range js {
		f.journeys[j.ID] = j.Clone()
	}
	return f
}

func (f *fakeJourneys) Create(_ context.Context, j *domain.Journey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.journeys[j.ID]; ok {
		return domain.NewAppError(domain.ErrCodeJourneyExists, "journey already exists", nil)
	}
	f.journeys[j.ID] = j.Clone()
	return nil
}

func (f *fakeJourneys) Get(_ context.Context, id string) (*domain.Journey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	j, ok := f.journeys[id]
	if !ok {
		return nil, domain.ErrJourneyNotFound
	}
	return j.Clone(), nil
}

func (f *fakeJourneys) SaveCycle(ctx context.Context, w *database.CycleWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if _, ok := ctx.Deadline(); !ok {
		return fmt.Errorf("persist without deadline")
	}
	stored, ok := f.journeys[w.Journey.ID]
	if !ok {
		return domain.ErrJourneyNotFound
	}
	if stored.Version != w.ExpectedVersion {
		return domain.ErrVersionConflict
	}
	f.journeys[w.Journey.ID] = w.Journey.Clone()
	f.writes = append(f.writes, *w)
	if f.positions != nil && w.Report != nil {
		_, _ = f.positions.Append(ctx, w.Report)
	}
	return nil
}

func (f *fakeJourneys) UpdateStatus(_ context.Context, id string, status domain.JourneyStatus, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	stored, ok := f.journeys[id]
	if !ok {
		return domain.ErrJourneyNotFound
	}
	if stored.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	stored.Status = status
	stored.Version++
	return nil
}

func (f *fakeJourneys) ListRunning(_ context.Context) ([]domain.Journey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Journey
	for _, j := range f.journeys {
		if j.Status.Running() {
			out = append(out, *j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (f *fakeJourneys) stored(id string) *domain.Journey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.journeys[id].Clone()
}

type fakeSegments struct {
	averages map[domain.SegmentKey]float64
	err      error
}

func (f *fakeSegments) SegmentAverages(_ context.Context, _ string) (map[domain.SegmentKey]float64, error) {
	return f.averages, f.err
}

type fakeOrders struct {
	pending map[string][]string
	err     error
}

func (f *fakeOrders) PendingOrderIDs(_ context.Context, _ string, waypointID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pending[waypointID], nil
}

type fakeCache struct {
	mu      sync.Mutex
	states  map[string]domain.JourneyState
	gets    int
	setErr  error
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{states: map[string]domain.JourneyState{}}
}

func (f *fakeCache) Get(_ context.Context, id string) (*domain.JourneyState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	st, ok := f.states[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (f *fakeCache) Set(_ context.Context, st *domain.JourneyState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.states[st.JourneyID] = *st
	return nil
}

func (f *fakeCache) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.states, id)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.CycleEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, evt *domain.CycleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *evt)
	return f.err
}

func (f *fakePublisher) last() domain.CycleEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[len(f.events)-1]
}

type fakeHealth struct {
	events []domain.HealthEvent
}

func (f *fakeHealth) FindOpen(_ context.Context, journeyID string, t domain.HealthEventType) (*domain.HealthEvent, error) {
	for i := range f.events {
		e := &f.events[i]
		if e.JourneyID == journeyID && e.Type == t && !e.Resolved {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeHealth) Insert(_ context.Context, e *domain.HealthEvent) error {
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeHealth) Resolve(_ context.Context, id string, at time.Time) error {
	for i := range f.events {
		if f.events[i].ID == id {
			f.events[i].Resolved = true
			f.events[i].ResolvedAt = &at
			return nil
		}
	}
	return fmt.Errorf("health event %s not found", id)
}

// harness wires a Coordinator to in-memory collaborators.
type harness struct {
	coord     *Coordinator
	journeys  *fakeJourneys
	positions *fakePositions
	segments  *fakeSegments
	orders    *fakeOrders
	cache     *fakeCache
	pub       *fakePublisher
}

func newHarness(agg AggregatorConfig, js ...*domain.Journey) *harness {
	h := &harness{
		positions: &fakePositions{},
		segments:  &fakeSegments{},
		orders:    &fakeOrders{pending: map[string][]string{}},
		cache:     newFakeCache(),
		pub:       &fakePublisher{},
	}
	h.journeys = newFakeJourneys(h.positions, js...)
	logger := discardLogger()
	h.coord = NewCoordinator(DefaultCoordinatorConfig(), Deps{
		Journeys:   h.journeys,
		Positions:  h.positions,
		Segments:   h.segments,
		Orders:     h.orders,
		Cache:      h.cache,
		Publisher:  h.pub,
		Geofence:   NewGeofenceEvaluator(DefaultGeofenceConfig(), logger),
		ETA:        NewETAEstimator(DefaultETAConfig()),
		Aggregator: NewPositionAggregator(agg, h.positions),
		Logger:     logger,
		Now:        func() time.Time { return testNow },
	})
	return h
}

var routeStart = domain.Point{Lat: -15.0, Lng: 28.0}

// testJourney is a three-stop route heading due north, 10 km between stops.
func testJourney() *domain.Journey {
	return &domain.Journey{
		ID:        "journey-1",
		RouteID:   "LSK-KBW",
		VehicleID: "BUS-001",
		Waypoints: []domain.Waypoint{
			{ID: "wp-1", Name: "Lusaka", Point: routeStart, Category: domain.CategoryMajor, Sequence: 1, Status: domain.WaypointOpen},
			{ID: "wp-2", Name: "Chisamba", Point: northOf(routeStart, 10), Category: domain.CategoryMinor, Sequence: 2, Status: domain.WaypointOpen, ScheduledOffsetMinutes: 15},
			{ID: "wp-3", Name: "Kabwe", Point: northOf(routeStart, 20), Category: domain.CategoryMedium, Sequence: 3, Status: domain.WaypointOpen, ScheduledOffsetMinutes: 30},
		},
		Status:        domain.JourneyPending,
		DepartureTime: testNow,
		Version:       1,
	}
}

func vehicleReport(p domain.Point, ts time.Time, speed float64) *domain.PositionReport {
	return &domain.PositionReport{
		JourneyID:  "journey-1",
		SourceType: domain.SourceVehicle,
		SourceID:   "gps-bus-001",
		Point:      p,
		Speed:      domain.FloatPtr(speed),
		Timestamp:  ts,
	}
}
