package fusion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/statestore"
	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

func newTestProcessor(bayes BayesNet) *Processor {
	return New(
		statestore.New(statestore.NewMemoryKV()),
		bayes,
		NewMetricsWith(prometheus.NewRegistry()),
		10*time.Second,
	)
}

func behaviourSignal(score float64) models.BehaviourOutput {
	return models.BehaviourOutput{TruckID: "TRUCK-001", Timestamp: time.Now(), AnomalyScore: score}
}

func twinSignal(score float64) models.TwinOutput {
	return models.TwinOutput{TruckID: "TRUCK-001", Timestamp: time.Now(), DeviationScore: score}
}

func routeSignal(score float64) models.RouteOutput {
	return models.RouteOutput{TruckID: "TRUCK-001", Timestamp: time.Now(), RouteRiskScore: score, InSafeCorridor: true}
}

func TestFusionWaitsForAllThreeSignals(t *testing.T) {
	p := newTestProcessor(nil)
	ctx := context.Background()

	_, fired := p.OnBehaviour(ctx, behaviourSignal(0.5))
	assert.False(t, fired)
	_, fired = p.OnTwin(ctx, twinSignal(0.5))
	assert.False(t, fired)
	out, fired := p.OnRoute(ctx, routeSignal(0.5))
	require.True(t, fired)

	assert.Equal(t, "TRUCK-001", out.TruckID)
	assert.NotEmpty(t, out.IncidentID)
	assert.Equal(t, models.FusionWeightedFallback, out.FusionMethod)
	assert.GreaterOrEqual(t, out.CompositeScore, 0.0)
	assert.LessOrEqual(t, out.CompositeScore, 1.0)
}

func TestSlotsClearAfterFiring(t *testing.T) {
	p := newTestProcessor(nil)
	ctx := context.Background()

	p.OnBehaviour(ctx, behaviourSignal(0.5))
	p.OnTwin(ctx, twinSignal(0.5))
	_, fired := p.OnRoute(ctx, routeSignal(0.5))
	require.True(t, fired)

	// The next route signal alone must not re-fire on stale slots.
	_, fired = p.OnRoute(ctx, routeSignal(0.5))
	assert.False(t, fired)
}

func TestStaleSignalBlocksFusionUntilRefreshed(t *testing.T) {
	c := newCorrelator(10 * time.Second)
	base := time.Now()
	now := base
	c.now = func() time.Time { return now }

	// Twin arrives 12s before the other two signals.
	_, fired := c.onTwin("TRUCK-001", twinSignal(0.5))
	require.False(t, fired)

	now = base.Add(12 * time.Second)
	_, fired = c.onBehaviour("TRUCK-001", behaviourSignal(0.5))
	assert.False(t, fired)
	_, fired = c.onRoute("TRUCK-001", routeSignal(0.5))
	assert.False(t, fired, "fusion must not fire while the twin slot is stale")

	// A fresh twin replacement completes the window.
	in, fired := c.onTwin("TRUCK-001", twinSignal(0.5))
	require.True(t, fired)
	assert.Less(t, in.ages.TwinAgeS, 10.0)
}

func TestCorrelatorKeysSlotsPerTruck(t *testing.T) {
	c := newCorrelator(10 * time.Second)

	_, fired := c.onBehaviour("TRUCK-001", behaviourSignal(0.5))
	require.False(t, fired)
	_, fired = c.onTwin("TRUCK-001", twinSignal(0.5))
	require.False(t, fired)

	other := routeSignal(0.5)
	other.TruckID = "TRUCK-002"
	_, fired = c.onRoute("TRUCK-002", other)
	assert.False(t, fired, "another truck's route signal must not complete this truck's slot")
}

func TestClassificationBoundaries(t *testing.T) {
	assert.Equal(t, models.RiskLow, classify(0.44))
	assert.Equal(t, models.RiskMedium, classify(0.45))
	assert.Equal(t, models.RiskHigh, classify(0.65))
	assert.Equal(t, models.RiskCritical, classify(0.85))
	assert.Equal(t, models.RiskCritical, classify(1.0))
	assert.Equal(t, models.RiskLow, classify(0))
}

func TestQualityFactorLaws(t *testing.T) {
	assert.Equal(t, 1.0, qualityFactor(0))
	assert.Greater(t, qualityFactor(1), qualityFactor(5))
	assert.Greater(t, qualityFactor(5), qualityFactor(50))
}

func TestTemporalScoreBands(t *testing.T) {
	for _, hour := range []int{22, 23, 0, 5} {
		assert.Equal(t, 0.8, temporalScore(hour), "hour %d", hour)
	}
	for _, hour := range []int{6, 8, 18, 21} {
		assert.Equal(t, 0.4, temporalScore(hour), "hour %d", hour)
	}
	for _, hour := range []int{9, 13, 17} {
		assert.Equal(t, 0.1, temporalScore(hour), "hour %d", hour)
	}
}

func TestWeightedFallbackStaysInRange(t *testing.T) {
	in := fusionInput{
		behaviour: behaviourSignal(1),
		twin:      twinSignal(1),
		route:     models.RouteOutput{TruckID: "TRUCK-001", Timestamp: time.Now(), RouteRiskScore: 1},
		ages:      models.SignalAges{BehaviourAgeS: 2, TwinAgeS: 4, RouteAgeS: 8},
	}
	composite, confidence := weightedFallback(in)
	assert.LessOrEqual(t, composite, 1.0)
	assert.Greater(t, composite, 0.8, "all-max components must score near the top")
	assert.Greater(t, confidence, 0.0)
	assert.Less(t, confidence, 1.0, "aged signals must cost confidence")
}

func TestTriggeredRules(t *testing.T) {
	in := fusionInput{
		behaviour: models.BehaviourOutput{LoiteringDetected: true},
		twin:      models.TwinOutput{Reasons: []string{"Door open without RFID authorization"}},
		route:     models.RouteOutput{InSafeCorridor: false, InHighRiskZone: true},
	}
	rules := triggeredRules(in, 0.9)
	assert.Contains(t, rules, models.RuleLoiteringDetected)
	assert.Contains(t, rules, models.RuleDoorOpenNoRFID)
	assert.Contains(t, rules, models.RuleGeofenceViolation)
	assert.Contains(t, rules, models.RuleHighRiskZoneEntry)
	assert.Contains(t, rules, models.RuleCriticalThresholdBreach)

	quiet := fusionInput{route: models.RouteOutput{InSafeCorridor: true}}
	assert.Empty(t, triggeredRules(quiet, 0.2))
}

// fixedBayes returns a canned distribution, or an error when failing.
type fixedBayes struct {
	dist    map[string]float64
	failing bool
}

func (f *fixedBayes) Query(Evidence) (map[string]float64, error) {
	if f.failing {
		return nil, errors.New("inference failed")
	}
	return f.dist, nil
}

func TestBayesianPathUsedWhenAvailable(t *testing.T) {
	p := newTestProcessor(&fixedBayes{dist: map[string]float64{
		"low": 0.1, "medium": 0.2, "high": 0.3, "critical": 0.4,
	}})
	ctx := context.Background()

	p.OnBehaviour(ctx, behaviourSignal(0.1))
	p.OnTwin(ctx, twinSignal(0.8))
	out, fired := p.OnRoute(ctx, routeSignal(0))
	require.True(t, fired)

	assert.Equal(t, models.FusionBayesian, out.FusionMethod)
	// composite = 0.1*0 + 0.2*0.33 + 0.3*0.67 + 0.4*1 = 0.667
	assert.InDelta(t, 0.667, out.CompositeScore, 0.001)
	assert.InDelta(t, 0.4, out.Confidence, 0.001)
	assert.Equal(t, models.RiskHigh, out.RiskLevel)
}

func TestBayesianFailureFallsBackToWeighted(t *testing.T) {
	p := newTestProcessor(&fixedBayes{failing: true})
	ctx := context.Background()

	p.OnBehaviour(ctx, behaviourSignal(0.5))
	p.OnTwin(ctx, twinSignal(0.5))
	out, fired := p.OnRoute(ctx, routeSignal(0.5))
	require.True(t, fired)

	assert.Equal(t, models.FusionWeightedFallback, out.FusionMethod)
}

func TestBayesianUnknownClassFallsBack(t *testing.T) {
	p := newTestProcessor(&fixedBayes{dist: map[string]float64{"catastrophic": 1}})
	ctx := context.Background()

	p.OnBehaviour(ctx, behaviourSignal(0.5))
	p.OnTwin(ctx, twinSignal(0.5))
	out, fired := p.OnRoute(ctx, routeSignal(0.5))
	require.True(t, fired)

	assert.Equal(t, models.FusionWeightedFallback, out.FusionMethod)
}

func TestDiscretization(t *testing.T) {
	assert.Equal(t, "normal", discretizeBehaviour(0.39))
	assert.Equal(t, "suspicious", discretizeBehaviour(0.4))
	assert.Equal(t, "critical", discretizeBehaviour(0.7))

	assert.Equal(t, "on_route", discretizeRoute(0.49))
	assert.Equal(t, "minor_off", discretizeRoute(0.5))
	assert.Equal(t, "major_off", discretizeRoute(2))

	assert.Equal(t, "night", discretizeTimeOfDay(23))
	assert.Equal(t, "night", discretizeTimeOfDay(5))
	assert.Equal(t, "day", discretizeTimeOfDay(12))
}

func TestIncidentIDsAreUnique(t *testing.T) {
	p := newTestProcessor(nil)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		p.OnBehaviour(ctx, behaviourSignal(0.5))
		p.OnTwin(ctx, twinSignal(0.5))
		out, fired := p.OnRoute(ctx, routeSignal(0.5))
		require.True(t, fired)
		assert.False(t, seen[out.IncidentID])
		seen[out.IncidentID] = true
	}
}
