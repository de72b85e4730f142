// Package geocoder implements the optional Geocoder boundary: the
// Route Processor's corridor/zone math ships as static geometry and never
// depends on this package — it only serves the bridge's convenience of
// resolving a place name before computing GPS-based risk.
package geocoder

import (
	"context"
	"errors"

	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

// ErrNotConfigured is returned by NullGeocoder for every call — the
// default when no geocoding backend is configured.
var ErrNotConfigured = errors.New("geocoder: not configured")

// RouteResult is the shape the bridge surfaces for a resolved route.
type RouteResult struct {
	DistanceM float64
	DurationS float64
	Geometry  []models.GPS
}

// Geocoder is the pluggable boundary for place-name resolution and
// routing between two points.
type Geocoder interface {
	Coords(ctx context.Context, name string) (models.GPS, error)
	Route(ctx context.Context, from, to models.GPS) (RouteResult, error)
}

// NullGeocoder is the always-available default: every call fails with
// ErrNotConfigured, never blocking or panicking a caller that doesn't
// need geocoding.
type NullGeocoder struct{}

func NewNullGeocoder() *NullGeocoder { return &NullGeocoder{} }

func (NullGeocoder) Coords(_ context.Context, _ string) (models.GPS, error) {
	return models.GPS{}, ErrNotConfigured
}

func (NullGeocoder) Route(_ context.Context, _, _ models.GPS) (RouteResult, error) {
	return RouteResult{}, ErrNotConfigured
}

var _ Geocoder = (*NullGeocoder)(nil)
