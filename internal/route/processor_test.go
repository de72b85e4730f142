package route

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	p := New(context.Background(), Config{})
	p.geometry = geometry{
		corridors: []polygon{buildEnvelope("main-corridor", []point{
			{lat: 0, lon: 0}, {lat: 0, lon: 1}, {lat: 1, lon: 1}, {lat: 1, lon: 0},
		})},
		riskZones: []polygon{{
			name: "warehouse-district",
			points: []point{
				{lat: 5, lon: 5}, {lat: 5, lon: 6}, {lat: 6, lon: 6}, {lat: 6, lon: 5},
			},
		}},
	}
	return p
}

func TestPointInsideCorridorIsSafe(t *testing.T) {
	p := newTestProcessor(t)
	out := p.Process(models.TwinOutput{
		GPS:       models.GPS{Lat: 0.5, Lon: 0.5},
		Timestamp: time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC),
	})

	assert.True(t, out.InSafeCorridor)
	assert.Equal(t, 0.0, out.DeviationKm)
	assert.Equal(t, "main-corridor", out.NearestCorridor)
}

func TestPointOutsideCorridorComputesDeviation(t *testing.T) {
	p := newTestProcessor(t)
	out := p.Process(models.TwinOutput{
		GPS:       models.GPS{Lat: 2, Lon: 0.5}, // 1 degree north of the envelope
		Timestamp: time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC),
	})

	assert.False(t, out.InSafeCorridor)
	assert.InDelta(t, 111, out.DeviationKm, 1)
	assert.Equal(t, "main-corridor", out.NearestCorridor)
}

func TestRiskZoneAddsFlatScore(t *testing.T) {
	p := newTestProcessor(t)
	out := p.Process(models.TwinOutput{
		GPS:       models.GPS{Lat: 5.5, Lon: 5.5},
		Timestamp: time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC),
	})

	assert.True(t, out.InHighRiskZone)
	assert.Equal(t, "warehouse-district", out.RiskZoneName)
}

func TestNightMultiplierAppliesToFinalScore(t *testing.T) {
	p := newTestProcessor(t)
	day := p.Process(models.TwinOutput{
		GPS:       models.GPS{Lat: 5.5, Lon: 5.5},
		Timestamp: time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC),
	})
	night := p.Process(models.TwinOutput{
		GPS:       models.GPS{Lat: 5.5, Lon: 5.5},
		Timestamp: time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, 1.0, day.TimeMultiplier)
	assert.Equal(t, 1.5, night.TimeMultiplier)
	assert.Greater(t, night.RouteRiskScore, day.RouteRiskScore)
}

func TestNoGeometryLoadedTreatsEveryPointAsOutsideSafe(t *testing.T) {
	p := New(context.Background(), Config{})
	out := p.Process(models.TwinOutput{
		GPS:       models.GPS{Lat: 10, Lon: 10},
		Timestamp: time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC),
	})

	assert.False(t, out.InSafeCorridor)
	assert.False(t, out.InHighRiskZone)
}
