package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

type vehiclePosition struct {
	TripID    string
	VehicleID string
	Latitude  float64
	Longitude float64
	Heading   *float64
	SpeedKmh  *float64
	Timestamp int64
}

func fetchFeed(ctx context.Context, client *http.Client, url string) (*gtfsrtpb.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(b, &fm); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return &fm, nil
}

// vehiclePositions keeps entities that carry a trip, a position and a
// timestamp. The entity timestamp falls back to the header timestamp.
func vehiclePositions(fm *gtfsrtpb.FeedMessage) []vehiclePosition {
	var headerTS int64
	if fm.GetHeader() != nil {
		headerTS = int64(fm.GetHeader().GetTimestamp())
	}

	var out []vehiclePosition
	for _, e := range fm.GetEntity() {
		v := e.GetVehicle()
		if v == nil || v.GetTrip().GetTripId() == "" || v.GetPosition() == nil {
			continue
		}

		pos := v.GetPosition()
		vp := vehiclePosition{
			TripID:    v.GetTrip().GetTripId(),
			VehicleID: v.GetVehicle().GetId(),
			Latitude:  float64(pos.GetLatitude()),
			Longitude: float64(pos.GetLongitude()),
			Timestamp: int64(v.GetTimestamp()),
		}
		if vp.VehicleID == "" {
			vp.VehicleID = e.GetId()
		}
		if vp.Timestamp == 0 {
			vp.Timestamp = headerTS
		}
		if vp.Timestamp == 0 {
			continue
		}
		if pos.Bearing != nil {
			h := float64(pos.GetBearing())
			vp.Heading = &h
		}
		if pos.Speed != nil {
			// GTFS-RT speed is in m/s
			s := float64(pos.GetSpeed()) * 3.6
			vp.SpeedKmh = &s
		}
		out = append(out, vp)
	}
	return out
}

// dedupe drops positions whose timestamp was already forwarded for the trip.
// Trips absent from the feed for longer than retention are forgotten.
type dedupe struct {
	retention time.Duration
	last      map[string]tripMark
}

type tripMark struct {
	timestamp int64
	seenAt    time.Time
}

func newDedupe(retention time.Duration) *dedupe {
	return &dedupe{retention: retention, last: make(map[string]tripMark)}
}

func (d *dedupe) fresh(vp vehiclePosition, now time.Time) bool {
	mark, ok := d.last[vp.TripID]
	if ok && vp.Timestamp <= mark.timestamp {
		mark.seenAt = now
		d.last[vp.TripID] = mark
		return false
	}
	d.last[vp.TripID] = tripMark{timestamp: vp.Timestamp, seenAt: now}
	return true
}

func (d *dedupe) prune(now time.Time) int {
	removed := 0
	for trip, mark := range d.last {
		if now.Sub(mark.seenAt) > d.retention {
			delete(d.last, trip)
			removed++
		}
	}
	return removed
}
