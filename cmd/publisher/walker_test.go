package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandanugg/journey-tracker/config"
	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/geo"
)

func testRoute() *config.Route {
	return &config.Route{
		Waypoints: []config.RouteWaypoint{
			{ID: "wp-1", Latitude: -15.0, Longitude: 28.0},
			{ID: "wp-2", Latitude: -14.91, Longitude: 28.0},
			{ID: "wp-3", Latitude: -14.82, Longitude: 28.0},
		},
	}
}

func TestWalker_AdvancesAlongLeg(t *testing.T) {
	w := newWalker(testRoute())
	start := w.position()

	p := w.advance(5)

	assert.InDelta(t, 5.0, geo.Distance(start, p), 0.01)
	assert.False(t, w.done())
}

func TestWalker_CarriesIntoNextLeg(t *testing.T) {
	route := testRoute()
	w := newWalker(route)
	first := geo.Distance(
		domain.Point{Lat: route.Waypoints[0].Latitude, Lng: route.Waypoints[0].Longitude},
		domain.Point{Lat: route.Waypoints[1].Latitude, Lng: route.Waypoints[1].Longitude},
	)

	p := w.advance(first + 2)

	wp2 := domain.Point{Lat: route.Waypoints[1].Latitude, Lng: route.Waypoints[1].Longitude}
	assert.InDelta(t, 2.0, geo.Distance(wp2, p), 0.01)
	assert.Equal(t, 1, w.leg)
}

func TestWalker_StopsAtLastWaypoint(t *testing.T) {
	w := newWalker(testRoute())

	p := w.advance(1000)

	require.True(t, w.done())
	assert.Equal(t, domain.Point{Lat: -14.82, Lng: 28.0}, p)
	assert.Equal(t, p, w.advance(5))
}
