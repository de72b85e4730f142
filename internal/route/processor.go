// Package route implements the Route Processor: geofencing against
// safe corridors and known high-theft risk zones, with a time-of-day
// multiplier.
package route

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/bus"
	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

const (
	deviationDivisorKm   = 10
	baseRiskDeviationCap = 0.6
	riskZoneScore        = 0.3
	nightMultiplier      = 1.5
	dayMultiplier        = 1.0
)

// Processor is the Route Processor. Geometry is loaded once at startup
// and held immutable thereafter.
type Processor struct {
	geometry geometry
	logger   *slog.Logger
}

// Config controls where the Route Processor loads its geometry from.
type Config struct {
	GeometryPath  string // YAML artifact path
	GeometryDBURL string // optional lib/pq override for corridors
}

// New loads geometry per cfg and constructs a Route Processor. Errors
// reaching the optional database override degrade to the YAML-loaded
// corridors, logged, never fatal.
func New(ctx context.Context, cfg Config) *Processor {
	logger := slog.Default().With("component", "route")
	g := loadGeometry(cfg.GeometryPath, logger)

	if cfg.GeometryDBURL != "" {
		if corridors, err := loadGeometryOverride(ctx, cfg.GeometryDBURL, logger); err != nil {
			logger.Warn("corridor database override failed, using YAML geometry", "error", err)
		} else {
			g.corridors = corridors
		}
	}

	return &Processor{geometry: g, logger: logger}
}

// Process evaluates one position against the loaded geometry.
func (p *Processor) Process(in models.TwinOutput) models.RouteOutput {
	pt := point{lat: in.GPS.Lat, lon: in.GPS.Lon}

	inSafe := false
	nearest := ""
	deviationKm := 0.0

	minDistDeg := math.Inf(1)
	for _, c := range p.geometry.corridors {
		if c.containsBuffered(pt, corridorBufferDeg) {
			inSafe = true
			nearest = c.name
			break
		}
		if d := c.distanceDeg(pt); d < minDistDeg {
			minDistDeg = d
			nearest = c.name
		}
	}
	if !inSafe && !math.IsInf(minDistDeg, 1) {
		deviationKm = minDistDeg * degPerKm
	}

	inRiskZone := false
	riskZoneName := ""
	for _, z := range p.geometry.riskZones {
		if z.contains(pt) {
			inRiskZone = true
			riskZoneName = z.name
			break
		}
	}

	multiplier := dayMultiplier
	if isNightHour(in.Timestamp.Hour()) {
		multiplier = nightMultiplier
	}

	base := 0.0
	if !inSafe {
		base += math.Min(deviationKm/deviationDivisorKm, baseRiskDeviationCap)
	}
	if inRiskZone {
		base += riskZoneScore
	}
	base = models.Clip01(base)

	final := models.Clip01(base * multiplier)

	return models.RouteOutput{
		TruckID:         in.TruckID,
		Timestamp:       in.Timestamp,
		GPS:             in.GPS,
		InSafeCorridor:  inSafe,
		DeviationKm:     deviationKm,
		InHighRiskZone:  inRiskZone,
		RiskZoneName:    riskZoneName,
		RouteRiskScore:  final,
		TimeMultiplier:  multiplier,
		NearestCorridor: nearest,
	}
}

func isNightHour(hour int) bool {
	return hour >= 22 || hour < 6
}

// Run subscribes to twin.output and publishes to route.output until ctx
// is canceled.
func (p *Processor) Run(ctx context.Context, b bus.Bus) error {
	sub := b.Subscribe("twin.output")
	defer b.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.C():
			if !ok {
				return nil
			}
			p.handle(b, payload)
		}
	}
}

func (p *Processor) handle(b bus.Bus, payload []byte) {
	var in models.TwinOutput
	if err := json.Unmarshal(payload, &in); err != nil {
		p.logger.Warn("dropping malformed twin.output message", "error", err)
		return
	}

	out := p.Process(in)

	encoded, err := json.Marshal(out)
	if err != nil {
		p.logger.Error("failed to encode route.output", "error", err)
		return
	}
	b.Publish("route.output", encoded)
}
