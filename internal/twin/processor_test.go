package twin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/statestore"
	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

func TestNominalWhenNoDeviations(t *testing.T) {
	p := New(statestore.New(statestore.NewMemoryKV()))
	out := p.Process(context.Background(), models.IoTTelemetry{
		TruckID:        "truck-1",
		Timestamp:      time.Now(),
		DoorState:      models.DoorClosed,
		CargoWeightKg:  2000,
		SignalStrength: 0.9,
	})

	assert.Equal(t, models.TwinNominal, out.Status)
	assert.Equal(t, 0.0, out.DeviationScore)
	assert.Empty(t, out.Reasons)
}

func TestDoorOpenNoRFIDDrivesCritical(t *testing.T) {
	p := New(statestore.New(statestore.NewMemoryKV()))
	out := p.Process(context.Background(), models.IoTTelemetry{
		TruckID:        "truck-1",
		Timestamp:      time.Now(),
		DoorState:      models.DoorOpen,
		EngineOn:       false,
		DriverRFIDSeen: false,
		CargoWeightKg:  2000,
		SignalStrength: 0.9,
	})

	require.Len(t, out.Reasons, 1)
	assert.Equal(t, "Door open without RFID authorization", out.Reasons[0])
	assert.Equal(t, models.TwinCritical, out.Status)
}

func TestWeightDeltaBelowThresholdIsIgnored(t *testing.T) {
	p := New(statestore.New(statestore.NewMemoryKV()))
	out := p.Process(context.Background(), models.IoTTelemetry{
		TruckID:        "truck-1",
		Timestamp:      time.Now(),
		DoorState:      models.DoorClosed,
		CargoWeightKg:  2040, // delta 40kg < 50kg threshold
		SignalStrength: 0.9,
	})

	assert.Empty(t, out.Reasons)
	assert.Equal(t, 0.0, out.DeviationScore)
}

func TestWeakSignalContributesFixedScore(t *testing.T) {
	p := New(statestore.New(statestore.NewMemoryKV()))
	out := p.Process(context.Background(), models.IoTTelemetry{
		TruckID:        "truck-1",
		Timestamp:      time.Now(),
		DoorState:      models.DoorClosed,
		CargoWeightKg:  2000,
		SignalStrength: 0.1,
	})

	assert.Equal(t, 0.4, out.DeviationScore)
	assert.Equal(t, models.TwinDegraded, out.Status)
}

func TestMultipleComponentsAverageAndClip(t *testing.T) {
	p := New(statestore.New(statestore.NewMemoryKV()))
	out := p.Process(context.Background(), models.IoTTelemetry{
		TruckID:        "truck-1",
		Timestamp:      time.Now(),
		DoorState:      models.DoorOpen,
		EngineOn:       false,
		DriverRFIDSeen: false,
		CargoWeightKg:  3000, // delta 1000kg -> clipped to 1.0
		SignalStrength: 0.1,  // 0.4
	})

	// components: weight=1.0, door=0.8, signal=0.4 -> mean = 2.2/3 = 0.733..
	assert.InDelta(t, 0.733, out.DeviationScore, 0.01)
	assert.Equal(t, models.TwinCritical, out.Status)
}

func TestSignalFreshnessReflectsTelemetryAge(t *testing.T) {
	p := New(statestore.New(statestore.NewMemoryKV()))
	stale := p.Process(context.Background(), models.IoTTelemetry{
		TruckID:   "truck-1",
		Timestamp: time.Now().Add(-2 * time.Minute),
	})
	assert.False(t, stale.SignalFresh)

	fresh := p.Process(context.Background(), models.IoTTelemetry{
		TruckID:   "truck-1",
		Timestamp: time.Now(),
	})
	assert.True(t, fresh.SignalFresh)
}

func TestBaselineFromStoreIsUsedForRouteDeviation(t *testing.T) {
	store := statestore.New(statestore.NewMemoryKV())
	require.NoError(t, store.SetBaseline(context.Background(), "truck-1", models.TwinBaseline{
		ExpectedCargoWeightKg: 2000,
		ExpectedDoorState:     models.DoorClosed,
		PlannedRouteCenter:    models.GPS{Lat: 0, Lon: 0},
		MaxDeviationKm:        1,
	}))
	p := New(store)

	out := p.Process(context.Background(), models.IoTTelemetry{
		TruckID:        "truck-1",
		Timestamp:      time.Now(),
		GPS:            models.GPS{Lat: 1, Lon: 0}, // ~111km away
		CargoWeightKg:  2000,
		SignalStrength: 0.9,
	})

	require.NotEmpty(t, out.Reasons)
	assert.Equal(t, models.TwinCritical, out.Status)
}
