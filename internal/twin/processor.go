// Package twin implements the Digital Twin Processor: it compares
// live IoT telemetry against a per-truck expected baseline and classifies
// the deviation into a coarse health status.
package twin

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/bus"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/statestore"
	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

const (
	weightDeltaThresholdKg = 50
	weightDeltaDivisor     = 500

	doorDeviationScore = 0.8
	// ReasonDoorOpenNoRFID is the exact reason string emitted when a door-open
	// deviation fires; exported so Risk Fusion can key DOOR_OPEN_NO_RFID off it.
	ReasonDoorOpenNoRFID = "Door open without RFID authorization"

	routeDeviationDivisorKm = 5

	weakSignalThreshold = 0.3
	weakSignalScore     = 0.4
	weakSignalReason    = "Weak IoT signal — possible jamming"

	criticalThreshold = 0.7
	degradedThreshold = 0.4

	signalFreshnessWindow = 60 * time.Second

	earthRadiusKm = 6371.0
)

// Processor is the Digital Twin Processor. It is stateless beyond the
// injected StateStore, which owns per-truck baselines.
type Processor struct {
	store  *statestore.StateStore
	logger *slog.Logger
}

// New constructs a Digital Twin Processor over the given baseline store.
func New(store *statestore.StateStore) *Processor {
	return &Processor{
		store:  store,
		logger: slog.Default().With("component", "twin"),
	}
}

// Process computes deviation and status for one telemetry sample.
func (p *Processor) Process(ctx context.Context, in models.IoTTelemetry) models.TwinOutput {
	baseline := p.store.Baseline(ctx, in.TruckID)

	var components []float64
	var reasons []string

	if delta := math.Abs(in.CargoWeightKg - baseline.ExpectedCargoWeightKg); delta > weightDeltaThresholdKg {
		components = append(components, models.Clip01(delta/weightDeltaDivisor))
		reasons = append(reasons, "Unexpected cargo weight change")
	}

	if in.DoorState == models.DoorOpen && !in.EngineOn && !in.DriverRFIDSeen {
		components = append(components, doorDeviationScore)
		reasons = append(reasons, ReasonDoorOpenNoRFID)
	}

	km := haversineKm(in.GPS, baseline.PlannedRouteCenter)
	if km > baseline.MaxDeviationKm {
		components = append(components, models.Clip01(km/routeDeviationDivisorKm))
		reasons = append(reasons, routeDeviationReason(km))
	}

	if in.SignalStrength < weakSignalThreshold {
		components = append(components, weakSignalScore)
		reasons = append(reasons, weakSignalReason)
	}

	deviation := meanClipped(components)

	return models.TwinOutput{
		TruckID:        in.TruckID,
		Timestamp:      in.Timestamp,
		GPS:            in.GPS,
		DoorState:      in.DoorState,
		CargoWeightKg:  in.CargoWeightKg,
		EngineOn:       in.EngineOn,
		DriverRFIDSeen: in.DriverRFIDSeen,
		DeviationScore: deviation,
		Reasons:        reasons,
		Status:         classify(deviation),
		SignalFresh:    time.Since(in.Timestamp) < signalFreshnessWindow,
	}
}

func classify(deviation float64) models.TwinStatus {
	switch {
	case deviation >= criticalThreshold:
		return models.TwinCritical
	case deviation >= degradedThreshold:
		return models.TwinDegraded
	default:
		return models.TwinNominal
	}
}

func meanClipped(components []float64) float64 {
	if len(components) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range components {
		sum += c
	}
	return models.Clip01(sum / float64(len(components)))
}

func routeDeviationReason(km float64) string {
	return "GPS deviates " + strconv.FormatFloat(km, 'f', 2, 64) + " km from planned route"
}

// haversineKm returns the great-circle distance between two WGS84 points
// in kilometers. Hand-rolled against the standard library — see
// DESIGN.md for why no geodesy dependency is in the retrieved stack.
func haversineKm(a, b models.GPS) float64 {
	lat1, lat2 := degToRad(a.Lat), degToRad(b.Lat)
	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

func degToRad(deg float64) float64 { return deg * math.Pi / 180 }

// Run subscribes to iot.telemetry and publishes to twin.output until ctx
// is canceled.
func (p *Processor) Run(ctx context.Context, b bus.Bus) error {
	sub := b.Subscribe("iot.telemetry")
	defer b.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.C():
			if !ok {
				return nil
			}
			p.handle(ctx, b, payload)
		}
	}
}

func (p *Processor) handle(ctx context.Context, b bus.Bus, payload []byte) {
	var in models.IoTTelemetry
	if err := json.Unmarshal(payload, &in); err != nil {
		p.logger.Warn("dropping malformed iot.telemetry message", "error", err)
		return
	}

	out := p.Process(ctx, in)

	encoded, err := json.Marshal(out)
	if err != nil {
		p.logger.Error("failed to encode twin.output", "error", err)
		return
	}
	b.Publish("twin.output", encoded)
}
