package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/database"
)

var journeyCols = []string{
	"id", "route_id", "vehicle_id", "status", "progress", "delay_minutes", "departure_time", "last_report_at",
	"canonical_latitude", "canonical_longitude", "canonical_source_type", "canonical_source_id",
	"canonical_accuracy", "canonical_heading", "canonical_speed", "canonical_recorded_at",
	"version", "created_at", "updated_at",
}

var stopCols = []string{
	"id", "name", "latitude", "longitude", "category", "sequence", "status", "distance_km", "minutes_to_arrival",
	"close_at_distance_km", "close_at_minutes_remaining", "scheduled_offset_minutes",
	"closing_soon_at", "closed_at", "locked_at",
}

func sampleJourney() *domain.Journey {
	ts := time.Unix(1715003456, 0)
	return &domain.Journey{
		ID:        "journey-1",
		RouteID:   "LSK-KBW",
		VehicleID: "BUS-001",
		Status:    domain.JourneyActive,
		Waypoints: []domain.Waypoint{
			{ID: "wp-1", Name: "Lusaka", Point: domain.Point{Lat: -15.41, Lng: 28.28}, Category: domain.CategoryMajor, Sequence: 1, Status: domain.WaypointLocked, LockedAt: &ts, ClosedAt: &ts},
			{ID: "wp-2", Name: "Kabwe", Point: domain.Point{Lat: -14.44, Lng: 28.45}, Category: domain.CategoryMedium, Sequence: 2, Status: domain.WaypointOpen},
		},
		Canonical: &domain.CanonicalPosition{
			Point:      domain.Point{Lat: -15.2, Lng: 28.3},
			SourceType: domain.SourceVehicle,
			SourceID:   "gps-bus-001",
			Speed:      domain.FloatPtr(72),
			RecordedAt: ts,
		},
		DepartureTime: ts.Add(-time.Hour),
		LastReportAt:  ts,
		Version:       4,
		CreatedAt:     ts.Add(-2 * time.Hour),
		UpdatedAt:     ts,
	}
}

func TestJourneyGet_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	ts := time.Unix(1715003456, 0)
	mock.ExpectQuery(`SELECT (.+) FROM journeys WHERE id = \$1`).
		WithArgs("journey-1").
		WillReturnRows(sqlmock.NewRows(journeyCols).AddRow(
			"journey-1", "LSK-KBW", "BUS-001", "DELAYED", 42.5, 18, ts.Add(-time.Hour), ts,
			-15.2, 28.3, "vehicle", "gps-bus-001", nil, 90.0, 72.0, ts,
			int64(4), ts.Add(-2*time.Hour), ts,
		))
	mock.ExpectQuery(`SELECT (.+) FROM route_stops WHERE journey_id = \$1 ORDER BY sequence ASC`).
		WithArgs("journey-1").
		WillReturnRows(sqlmock.NewRows(stopCols).
			AddRow("wp-1", "Lusaka", -15.41, 28.28, "major", 1, "LOCKED", 0.0, 0.0, 0.0, 0.0, 0.0, ts, ts, ts).
			AddRow("wp-2", "Kabwe", -14.44, 28.45, "medium", 2, "OPEN", 85.1, 70.9, 0.0, 10.0, 120.0, nil, nil, nil))

	repo := NewJourneyRepo(db)
	j, err := repo.Get(context.Background(), "journey-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Status != domain.JourneyDelayed {
		t.Errorf("expected DELAYED, got %s", j.Status)
	}
	if j.DelayMinutes != 18 {
		t.Errorf("expected 18, got %d", j.DelayMinutes)
	}
	if j.Canonical == nil || j.Canonical.Point.Lat != -15.2 {
		t.Fatalf("expected canonical at -15.2, got %+v", j.Canonical)
	}
	if j.Canonical.Accuracy != nil {
		t.Errorf("expected nil accuracy, got %v", *j.Canonical.Accuracy)
	}
	if j.Canonical.Speed == nil || *j.Canonical.Speed != 72 {
		t.Errorf("expected speed 72, got %v", j.Canonical.Speed)
	}
	if len(j.Waypoints) != 2 {
		t.Fatalf("expected 2 waypoints, got %d", len(j.Waypoints))
	}
	if j.Waypoints[0].LockedAt == nil || !j.Waypoints[0].LockedAt.Equal(ts) {
		t.Errorf("expected wp-1 locked at %v", ts)
	}
	if j.Waypoints[1].LockedAt != nil {
		t.Errorf("expected wp-2 not locked")
	}
	if j.Waypoints[1].CloseAtMinutesRemaining != 10 {
		t.Errorf("expected 10, got %f", j.Waypoints[1].CloseAtMinutesRemaining)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestJourneyGet_NoCanonical(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	ts := time.Unix(1715003456, 0)
	mock.ExpectQuery(`SELECT (.+) FROM journeys`).
		WillReturnRows(sqlmock.NewRows(journeyCols).AddRow(
			"journey-1", "LSK-KBW", "BUS-001", "PENDING", 0.0, 0, ts, nil,
			nil, nil, nil, nil, nil, nil, nil, nil,
			int64(1), ts, ts,
		))
	mock.ExpectQuery(`SELECT (.+) FROM route_stops`).
		WillReturnRows(sqlmock.NewRows(stopCols))

	j, err := NewJourneyRepo(db).Get(context.Background(), "journey-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Canonical != nil {
		t.Errorf("expected no canonical position, got %+v", j.Canonical)
	}
	if !j.LastReportAt.IsZero() {
		t.Errorf("expected zero last report, got %v", j.LastReportAt)
	}
}

func TestJourneyGet_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT (.+) FROM journeys WHERE id = \$1`).
		WithArgs("UNKNOWN").
		WillReturnRows(sqlmock.NewRows(journeyCols))

	_, err = NewJourneyRepo(db).Get(context.Background(), "UNKNOWN")
	if !errors.Is(err, domain.ErrJourneyNotFound) {
		t.Fatalf("expected ErrJourneyNotFound, got %v", err)
	}
}

func TestJourneyCreate_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO journeys`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO route_stops`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO route_stops`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := NewJourneyRepo(db).Create(context.Background(), sampleJourney()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestJourneyCreate_Duplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO journeys`).WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err = NewJourneyRepo(db).Create(context.Background(), sampleJourney())
	if domain.CodeOf(err) != domain.ErrCodeJourneyExists {
		t.Fatalf("expected %s, got %v", domain.ErrCodeJourneyExists, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestJourneySaveCycle_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	j := sampleJourney()
	j.Version = 5
	ts := time.Unix(1715003456, 0)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE journeys SET (.+) WHERE id = \$15 AND version = \$16`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE route_stops SET`).
		WithArgs("LOCKED", 0.0, 0.0, nil, ts, ts, "journey-1", "wp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE route_stops SET`).
		WithArgs("OPEN", 0.0, 0.0, nil, nil, nil, "journey-1", "wp-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO position_reports`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO eta_predictions (.+) ON CONFLICT \(journey_id, waypoint_id\) DO UPDATE`).
		WithArgs("journey-1", "wp-2", ts.Add(time.Hour), 0.95, false, 0, ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = NewJourneyRepo(db).SaveCycle(context.Background(), &database.CycleWrite{
		Report: &domain.PositionReport{
			JourneyID: "journey-1", SourceType: domain.SourceVehicle, SourceID: "gps-bus-001",
			Point: domain.Point{Lat: -15.2, Lng: 28.3}, Timestamp: ts,
		},
		Journey: j,
		ETAs: []domain.ETAPrediction{
			{JourneyID: "journey-1", WaypointID: "wp-2", PredictedArrival: ts.Add(time.Hour), Confidence: 0.95, CalculatedAt: ts},
		},
		ExpectedVersion: 4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestJourneySaveCycle_VersionConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE journeys SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = NewJourneyRepo(db).SaveCycle(context.Background(), &database.CycleWrite{Journey: sampleJourney(), ExpectedVersion: 3})
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestJourneySaveCycle_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE journeys SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE route_stops SET`).WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	err = NewJourneyRepo(db).SaveCycle(context.Background(), &database.CycleWrite{Journey: sampleJourney(), ExpectedVersion: 4})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestJourneySaveCycle_DuplicateReportRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE journeys SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE route_stops SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE route_stops SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO position_reports (.+) ON CONFLICT \(source_id, recorded_at\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = NewJourneyRepo(db).SaveCycle(context.Background(), &database.CycleWrite{
		Report: &domain.PositionReport{
			JourneyID: "journey-1", SourceType: domain.SourceVehicle, SourceID: "gps-bus-001",
			Point: domain.Point{Lat: -15.2, Lng: 28.3}, Timestamp: time.Unix(1715003456, 0),
		},
		Journey:         sampleJourney(),
		ExpectedVersion: 4,
	})
	if !errors.Is(err, domain.ErrDuplicateReport) {
		t.Fatalf("expected ErrDuplicateReport, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestJourneyUpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`UPDATE journeys SET status = \$1::text`).
		WithArgs("CANCELLED", "journey-1", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE journeys SET status = \$1::text`).
		WithArgs("CANCELLED", "journey-1", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewJourneyRepo(db)
	if err := repo.UpdateStatus(context.Background(), "journey-1", domain.JourneyCancelled, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = repo.UpdateStatus(context.Background(), "journey-1", domain.JourneyCancelled, 4)
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestJourneyListRunning(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	ts := time.Unix(1715003456, 0)
	mock.ExpectQuery(`SELECT (.+) FROM journeys WHERE status IN \('ACTIVE', 'DELAYED'\)`).
		WillReturnRows(sqlmock.NewRows(journeyCols).
			AddRow("journey-1", "R", "V1", "ACTIVE", 10.0, 0, ts, ts, -15.2, 28.3, "vehicle", "gps-1", nil, nil, nil, ts, int64(2), ts, ts).
			AddRow("journey-2", "R", "V2", "DELAYED", 55.0, 22, ts, ts, -14.9, 28.4, "passenger", "phone-9", 12.0, nil, nil, ts, int64(7), ts, ts))

	got, err := NewJourneyRepo(db).ListRunning(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 journeys, got %d", len(got))
	}
	if got[1].Canonical.SourceType != domain.SourcePassenger {
		t.Errorf("expected passenger, got %s", got[1].Canonical.SourceType)
	}
	if got[1].Canonical.Accuracy == nil || *got[1].Canonical.Accuracy != 12 {
		t.Errorf("expected accuracy 12")
	}
}
