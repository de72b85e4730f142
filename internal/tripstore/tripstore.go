// Package tripstore is the CRUD store boundary: trip/truck lookup and
// alert persistence, out of scope for scoring itself but required by the
// HTTP Bridge's 404-on-unknown-trip behavior.
package tripstore

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownTrip is returned when a trip id has no known record —
// callers map this to HTTP 404.
var ErrUnknownTrip = errors.New("tripstore: unknown trip id")

// Trip is the minimal record the bridge needs to resolve a trip id to a
// truck id and to escalate its status.
type Trip struct {
	TripID  string
	TruckID string
	Status  string
}

// Alert is a durable side effect persisted alongside a bridge invocation,
// next to trip-status escalation.
type Alert struct {
	TripID     string
	TruckID    string
	IncidentID string
	RiskLevel  string
	CreatedAt  time.Time
}

// TripStore is the CRUD boundary: trip lookup, alert persistence,
// status escalation.
type TripStore interface {
	// GetTrip resolves a trip id, returning ErrUnknownTrip if absent.
	GetTrip(ctx context.Context, tripID string) (Trip, error)
	// PersistAlert records an alert raised against a trip.
	PersistAlert(ctx context.Context, alert Alert) error
	// EscalateStatus updates a trip's status field (e.g. "flagged", "under_review").
	EscalateStatus(ctx context.Context, tripID, status string) error
}
