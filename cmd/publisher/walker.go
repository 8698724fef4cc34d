package main

import (
	"github.com/nandanugg/journey-tracker/config"
	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/geo"
)

// walker moves a point along the route polyline at a fixed distance per step.
type walker struct {
	points []domain.Point
	leg    int
	pos    domain.Point
}

func newWalker(route *config.Route) *walker {
	points := make([]domain.Point, len(route.Waypoints))
	for i, wp := range route.Waypoints {
		points[i] = domain.Point{Lat: wp.Latitude, Lng: wp.Longitude}
	}
	return &walker{points: points, pos: points[0]}
}

func (w *walker) position() domain.Point {
	return w.pos
}

func (w *walker) done() bool {
	return w.leg >= len(w.points)-1
}

// advance moves stepKm along the route, carrying any remainder into the
// following legs.
func (w *walker) advance(stepKm float64) domain.Point {
	for stepKm > 0 && !w.done() {
		next := w.points[w.leg+1]
		remaining := geo.Distance(w.pos, next)
		if remaining <= stepKm {
			stepKm -= remaining
			w.pos = next
			w.leg++
			continue
		}
		f := stepKm / remaining
		w.pos = domain.Point{
			Lat: w.pos.Lat + (next.Lat-w.pos.Lat)*f,
			Lng: w.pos.Lng + (next.Lng-w.pos.Lng)*f,
		}
		stepKm = 0
	}
	return w.pos
}
