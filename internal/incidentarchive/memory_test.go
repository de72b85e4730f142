package incidentarchive

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

func TestMemoryArchiveNewestFirst(t *testing.T) {
	a := NewMemoryArchive()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, a.Record(ctx, Record{
			TruckID:    "TRUCK-001",
			IncidentID: fmt.Sprintf("inc-%d", i),
			RuleID:     "R001",
			RiskLevel:  models.RiskCritical,
			Timestamp:  time.Now(),
		}))
	}

	recs, err := a.Recent(ctx, "TRUCK-001", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "inc-2", recs[0].IncidentID)
	assert.Equal(t, "inc-1", recs[1].IncidentID)
}

func TestMemoryArchiveIsolatesTrucks(t *testing.T) {
	a := NewMemoryArchive()
	ctx := context.Background()

	require.NoError(t, a.Record(ctx, Record{TruckID: "TRUCK-001", IncidentID: "inc-a"}))

	recs, err := a.Recent(ctx, "TRUCK-002", 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFactoryDefaultsToMemory(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryArchive{}, a)
}

func TestFactoryRejectsIncompleteSpannerConfig(t *testing.T) {
	_, err := New(Config{Backend: "spanner"})
	assert.Error(t, err)
}

func TestFactoryRejectsUnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "dynamo"})
	assert.Error(t, err)
}
