// Package explainability implements the Explainability Processor:
// it correlates a fired decision back to its originating risk assessment
// via the incident id, builds a Summarizer prompt from the combined
// evidence, and publishes a natural-language explanation.
package explainability

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/bus"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/statestore"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/summarizer"
	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

// Processor subscribes to decision.output, looks the matching RiskOutput
// up in the State Store's risk cache, and dispatches a Summarizer.
type Processor struct {
	store      *statestore.StateStore
	summarizer summarizer.Summarizer
	logger     *slog.Logger
}

func New(store *statestore.StateStore, s summarizer.Summarizer) *Processor {
	return &Processor{
		store:      store,
		summarizer: s,
		logger:     slog.Default().With("component", "explainability"),
	}
}

// Explain builds a prompt from the correlated risk+decision pair and
// produces an ExplanationOutput. Returns ok=false if the incident could
// not be correlated (no cached RiskOutput, e.g. cache eviction) or the
// summarizer fails — callers should skip publishing. It does not look at
// the decision's RuleID.
func (p *Processor) Explain(ctx context.Context, decision models.DecisionOutput) (models.ExplanationOutput, bool) {
	risk, found := p.store.CachedRisk(decision.IncidentID)
	if !found {
		p.logger.Warn("no cached risk output for incident, skipping explanation", "incident_id", decision.IncidentID)
		return models.ExplanationOutput{}, false
	}

	prompt := buildPrompt(risk, decision)

	start := time.Now()
	text, modelID, err := p.summarizer.Summarize(ctx, prompt)
	elapsed := time.Since(start)
	if err != nil {
		p.logger.Error("summarizer failed", "incident_id", decision.IncidentID, "error", err)
		return models.ExplanationOutput{}, false
	}

	out := models.ExplanationOutput{
		IncidentID:       decision.IncidentID,
		TruckID:          decision.TruckID,
		Timestamp:        decision.Timestamp,
		Text:             text,
		SummarizerID:     modelID,
		GenerationTimeMs: elapsed.Milliseconds(),
		Confidence:       risk.Confidence,
		RiskLevel:        risk.RiskLevel,
	}

	if raw, merr := json.Marshal(out); merr == nil {
		if serr := p.store.SaveExplanation(ctx, decision.IncidentID, raw); serr != nil {
			p.logger.Warn("failed to persist explanation", "incident_id", decision.IncidentID, "error", serr)
		}
	}

	return out, true
}

func buildPrompt(risk models.RiskOutput, decision models.DecisionOutput) summarizer.Prompt {
	triggered := make([]string, 0, len(risk.TriggeredRules))
	for _, r := range risk.TriggeredRules {
		triggered = append(triggered, string(r))
	}
	actions := make([]string, 0, len(decision.ActionsTaken))
	for _, a := range decision.ActionsTaken {
		actions = append(actions, string(a))
	}
	return summarizer.Prompt{
		TruckID:        risk.TruckID,
		Timestamp:      risk.Timestamp.Format(time.RFC3339),
		RiskLevel:      string(risk.RiskLevel),
		CompositeScore: risk.CompositeScore,
		Confidence:     risk.Confidence,
		RuleName:       decision.RuleName,
		FusionMethod:   string(risk.FusionMethod),
		Behaviour:      risk.ComponentScores.Behaviour,
		Twin:           risk.ComponentScores.Twin,
		Route:          risk.ComponentScores.Route,
		Temporal:       risk.ComponentScores.Temporal,
		TriggeredRules: triggered,
		ActionsTaken:   actions,
	}
}

// Run subscribes to decision.output and publishes correlated explanations
// to explain.output until ctx is canceled.
func (p *Processor) Run(ctx context.Context, b bus.Bus) error {
	sub := b.Subscribe("decision.output")
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
	var decision models.DecisionOutput
	if err := json.Unmarshal(payload, &decision); err != nil {
		p.logger.Warn("dropping malformed decision.output message", "error", err)
		return
	}
	if decision.RuleID == nil {
		return // no rule matched, nothing to explain
	}

	out, ok := p.Explain(ctx, decision)
	if !ok {
		return
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		p.logger.Error("failed to encode explain.output", "error", err)
		return
	}
	b.Publish("explain.output", encoded)
}
