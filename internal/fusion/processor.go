// Package fusion implements the Risk Fusion Processor: it
// correlates Behaviour, Twin, and Route outputs per truck and scores a
// composite risk, preferring a Bayesian network when one is configured
// and falling back to quality-weighted scoring otherwise.
package fusion

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/bus"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/statestore"
	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

const riskScoreTTL = 60 * time.Second

const (
	criticalThreshold = 0.85
	highThreshold     = 0.65
	mediumThreshold   = 0.45
)

// Processor is the Risk Fusion Processor.
type Processor struct {
	correlator *correlator
	bayes      BayesNet // nil means Bayesian path unavailable, always fall back
	store      *statestore.StateStore
	metrics    *Metrics
	logger     *slog.Logger
}

// New constructs a Risk Fusion Processor. bayes may be nil.
func New(store *statestore.StateStore, bayes BayesNet, metrics *Metrics, stalenessWindow time.Duration) *Processor {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Processor{
		correlator: newCorrelator(stalenessWindow),
		bayes:      bayes,
		store:      store,
		metrics:    metrics,
		logger:     slog.Default().With("component", "fusion"),
	}
}

// OnBehaviour folds a Behaviour signal in; returns a fused RiskOutput when
// the truck's slot becomes complete and fresh.
func (p *Processor) OnBehaviour(ctx context.Context, b models.BehaviourOutput) (models.RiskOutput, bool) {
	in, fired := p.correlator.onBehaviour(b.TruckID, b)
	if !fired {
		return models.RiskOutput{}, false
	}
	return p.fuse(ctx, b.TruckID, in), true
}

// OnTwin folds a Twin signal in.
func (p *Processor) OnTwin(ctx context.Context, tw models.TwinOutput) (models.RiskOutput, bool) {
	in, fired := p.correlator.onTwin(tw.TruckID, tw)
	if !fired {
		return models.RiskOutput{}, false
	}
	return p.fuse(ctx, tw.TruckID, in), true
}

// OnRoute folds a Route signal in.
func (p *Processor) OnRoute(ctx context.Context, r models.RouteOutput) (models.RiskOutput, bool) {
	in, fired := p.correlator.onRoute(r.TruckID, r)
	if !fired {
		return models.RiskOutput{}, false
	}
	return p.fuse(ctx, r.TruckID, in), true
}

func (p *Processor) fuse(ctx context.Context, truckID string, in fusionInput) models.RiskOutput {
	composite, confidence, method := p.score(in)

	out := models.RiskOutput{
		TruckID:        truckID,
		Timestamp:      time.Now(),
		IncidentID:     uuid.NewString(),
		CompositeScore: composite,
		RiskLevel:      classify(composite),
		Confidence:     confidence,
		ComponentScores: models.ComponentScores{
			Behaviour: in.behaviour.AnomalyScore,
			Twin:      in.twin.DeviationScore,
			Route:     in.route.RouteRiskScore,
			Temporal:  temporalScore(timeOfDayHour(in)),
		},
		SignalAges:     in.ages,
		TriggeredRules: triggeredRules(in, composite),
		FusionMethod:   method,
	}

	if p.store != nil {
		p.store.CacheRisk(out)
		if raw, err := json.Marshal(out); err == nil {
			if err := p.store.SetSignal(ctx, truckID, "risk_score", raw, riskScoreTTL/statestoreFreshnessMultiplier()); err != nil {
				p.logger.Warn("failed to cache risk_score", "truck_id", truckID, "error", err)
			}
		}
	}

	p.metrics.FusionsTotal.WithLabelValues(string(out.RiskLevel)).Inc()
	p.metrics.CompositeScore.WithLabelValues(truckID).Observe(composite)
	p.metrics.FusionMethodUsed.WithLabelValues(string(method)).Inc()

	return out
}

// statestoreFreshnessMultiplier cancels the SetSignal TTL convention
// (freshnessWindow * 10) so riskScoreTTL lands at exactly 60s, not 600s.
func statestoreFreshnessMultiplier() time.Duration { return 10 }

func (p *Processor) score(in fusionInput) (composite, confidence float64, method models.FusionMethod) {
	if composite, confidence, ok := queryBayes(p.bayes, in); ok {
		return composite, confidence, models.FusionBayesian
	}
	composite, confidence = weightedFallback(in)
	return composite, confidence, models.FusionWeightedFallback
}

func classify(composite float64) models.RiskLevel {
	switch {
	case composite >= criticalThreshold:
		return models.RiskCritical
	case composite >= highThreshold:
		return models.RiskHigh
	case composite >= mediumThreshold:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func triggeredRules(in fusionInput, composite float64) []models.TriggeredRule {
	var rules []models.TriggeredRule
	if in.behaviour.LoiteringDetected {
		rules = append(rules, models.RuleLoiteringDetected)
	}
	for _, reason := range in.twin.Reasons {
		if reason == "Door open without RFID authorization" {
			rules = append(rules, models.RuleDoorOpenNoRFID)
			break
		}
	}
	if !in.route.InSafeCorridor {
		rules = append(rules, models.RuleGeofenceViolation)
	}
	if in.route.InHighRiskZone {
		rules = append(rules, models.RuleHighRiskZoneEntry)
	}
	if composite >= criticalThreshold {
		rules = append(rules, models.RuleCriticalThresholdBreach)
	}
	return rules
}

// Run subscribes to all three upstream topics and publishes fused
// RiskOutputs to risk.output until ctx is canceled.
func (p *Processor) Run(ctx context.Context, b bus.Bus) error {
	behaviourSub := b.Subscribe("behaviour.output")
	twinSub := b.Subscribe("twin.output")
	routeSub := b.Subscribe("route.output")
	defer b.Unsubscribe(behaviourSub)
	defer b.Unsubscribe(twinSub)
	defer b.Unsubscribe(routeSub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-behaviourSub.C():
			if !ok {
				return nil
			}
			p.handleBehaviour(ctx, b, payload)
		case payload, ok := <-twinSub.C():
			if !ok {
				return nil
			}
			p.handleTwin(ctx, b, payload)
		case payload, ok := <-routeSub.C():
			if !ok {
				return nil
			}
			p.handleRoute(ctx, b, payload)
		}
	}
}

func (p *Processor) handleBehaviour(ctx context.Context, b bus.Bus, payload []byte) {
	var in models.BehaviourOutput
	if err := json.Unmarshal(payload, &in); err != nil {
		p.logger.Warn("dropping malformed behaviour.output message", "error", err)
		return
	}
	if out, fired := p.OnBehaviour(ctx, in); fired {
		p.publish(b, out)
	}
}

func (p *Processor) handleTwin(ctx context.Context, b bus.Bus, payload []byte) {
	var in models.TwinOutput
	if err := json.Unmarshal(payload, &in); err != nil {
		p.logger.Warn("dropping malformed twin.output message", "error", err)
		return
	}
	if out, fired := p.OnTwin(ctx, in); fired {
		p.publish(b, out)
	}
}

func (p *Processor) handleRoute(ctx context.Context, b bus.Bus, payload []byte) {
	var in models.RouteOutput
	if err := json.Unmarshal(payload, &in); err != nil {
		p.logger.Warn("dropping malformed route.output message", "error", err)
		return
	}
	if out, fired := p.OnRoute(ctx, in); fired {
		p.publish(b, out)
	}
}

func (p *Processor) publish(b bus.Bus, out models.RiskOutput) {
	encoded, err := json.Marshal(out)
	if err != nil {
		p.logger.Error("failed to encode risk.output", "error", err)
		return
	}
	b.Publish("risk.output", encoded)
}
