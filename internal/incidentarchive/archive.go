// Package incidentarchive persists fired decisions durably, beyond the
// State Store's capped in-memory incident log. The archive is an audit
// surface: reporting reads it, nothing in the hot path depends on it, and
// a write failure only costs a log line.
package incidentarchive

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

// Record is one archived decision.
type Record struct {
	TruckID    string
	IncidentID string
	RuleID     string
	RiskLevel  models.RiskLevel
	Score      float64
	Actions    []models.Action
	Timestamp  time.Time
}

// Archive is the durable incident sink.
type Archive interface {
	Record(ctx context.Context, rec Record) error
	// Recent returns up to limit records for a truck, newest first.
	Recent(ctx context.Context, truckID string, limit int) ([]Record, error)
	Close() error
}

// Config selects the archive backend.
type Config struct {
	Backend         string // "memory" or "spanner"
	SpannerProject  string
	SpannerInstance string
	SpannerDatabase string
}

// New creates the archive for the given configuration.
func New(config Config) (Archive, error) {
	switch config.Backend {
	case "spanner":
		if config.SpannerProject == "" || config.SpannerInstance == "" || config.SpannerDatabase == "" {
			return nil, fmt.Errorf("spanner configuration incomplete")
		}
		return NewSpannerArchive(config.SpannerProject, config.SpannerInstance, config.SpannerDatabase)

	case "memory", "":
		return NewMemoryArchive(), nil

	default:
		return nil, fmt.Errorf("unknown archive backend: %s", config.Backend)
	}
}

// NewFromEnv creates an archive from environment variables. The default is
// the in-memory backend so a zero-config deployment still runs.
func NewFromEnv() (Archive, error) {
	backend := os.Getenv("ARCHIVE_BACKEND")
	if backend == "" {
		backend = "memory"
	}

	config := Config{
		Backend:         backend,
		SpannerProject:  os.Getenv("SPANNER_PROJECT_ID"),
		SpannerInstance: os.Getenv("SPANNER_INSTANCE_ID"),
		SpannerDatabase: os.Getenv("SPANNER_DATABASE_ID"),
	}

	return New(config)
}
