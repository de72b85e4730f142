package decision

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/bus"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/circuitbreaker"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/incidentarchive"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/notifier"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/statestore"
	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

// Processor is the Decision Processor: it matches fused risk against the
// ordered rule table, enforces per-(truck,rule) cooldowns, and dispatches
// notifications for the first matching rule.
type Processor struct {
	rules    []Rule
	store    *statestore.StateStore
	notifier notifier.Notifier
	archive  incidentarchive.Archive
	breaker  *circuitbreaker.CircuitBreaker
	logger   *slog.Logger
}

// New constructs a Decision Processor over the default rule table.
// notifier and archive may be nil — the SMS/email sends and the archive
// write are then skipped without error, never panicking the processor.
func New(store *statestore.StateStore, n notifier.Notifier, archive incidentarchive.Archive) *Processor {
	rules := DefaultRules()
	sort.Slice(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
	return &Processor{
		rules:    rules,
		store:    store,
		notifier: n,
		archive:  archive,
		breaker:  circuitbreaker.New(circuitbreaker.DefaultConfig("notifier")),
		logger:   slog.Default().With("component", "decision"),
	}
}

// Process evaluates one RiskOutput against the rule table.
func (p *Processor) Process(ctx context.Context, risk models.RiskOutput) models.DecisionOutput {
	out := models.DecisionOutput{
		TruckID:    risk.TruckID,
		IncidentID: risk.IncidentID,
		Timestamp:  risk.Timestamp,
		RiskScore:  risk.CompositeScore,
		RiskLevel:  risk.RiskLevel,
	}

	rule, matched := firstMatch(p.rules, risk.CompositeScore)
	if !matched {
		return out // rule_id stays nil, not suppressed
	}

	ruleID := rule.ID
	out.RuleID = &ruleID
	out.RuleName = rule.Name

	if p.store != nil && p.store.OnCooldown(ctx, risk.TruckID, rule.ID) {
		out.AlertSuppressed = true
		out.SuppressedReason = "cooldown active for truck " + risk.TruckID + " rule " + rule.ID
		return out
	}

	if p.store != nil {
		if err := p.store.SetCooldown(ctx, risk.TruckID, rule.ID, rule.Cooldown); err != nil {
			p.logger.Warn("failed to set cooldown, proceeding anyway", "truck_id", risk.TruckID, "rule_id", rule.ID, "error", err)
		}
	}

	out.ActionsTaken = p.dispatch(ctx, risk, out, rule)

	if p.store != nil {
		_ = p.store.PushIncident(ctx, risk.TruckID, statestore.IncidentSummary{
			IncidentID: risk.IncidentID,
			Timestamp:  risk.Timestamp,
			RiskLevel:  risk.RiskLevel,
			RuleID:     rule.ID,
		})
	}

	if p.archive != nil {
		if err := p.archive.Record(ctx, incidentarchive.Record{
			TruckID:    risk.TruckID,
			IncidentID: risk.IncidentID,
			RuleID:     rule.ID,
			RiskLevel:  risk.RiskLevel,
			Score:      risk.CompositeScore,
			Actions:    out.ActionsTaken,
			Timestamp:  risk.Timestamp,
		}); err != nil {
			p.logger.Warn("incident archive write failed", "incident_id", risk.IncidentID, "error", err)
		}
	}

	return out
}

// dispatch invokes the Notifier for every action in rule.Actions, wrapped
// in a circuit breaker. log_incident always "succeeds" — it is recorded
// via PushIncident above, not through the Notifier.
func (p *Processor) dispatch(ctx context.Context, risk models.RiskOutput, decision models.DecisionOutput, rule Rule) []models.Action {
	smsText, emailSubject, emailBody := notifier.BuildMessages(risk, decision)

	var taken []models.Action
	for _, action := range rule.Actions {
		switch action {
		case models.ActionSMS:
			p.sendSMS(ctx, smsText, risk.TruckID)
			taken = append(taken, action)
		case models.ActionEmail:
			p.sendEmail(ctx, emailSubject, emailBody, risk.TruckID)
			taken = append(taken, action)
		case models.ActionLogIncident:
			taken = append(taken, action)
		}
	}
	return taken
}

func (p *Processor) sendSMS(ctx context.Context, text, to string) {
	if p.notifier == nil {
		return
	}
	_, err := p.breaker.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, p.notifier.SMS(ctx, text, to)
	})
	if err != nil {
		p.logger.Warn("sms dispatch failed", "to", to, "error", err)
	}
}

func (p *Processor) sendEmail(ctx context.Context, subject, body, to string) {
	if p.notifier == nil {
		return
	}
	_, err := p.breaker.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, p.notifier.Email(ctx, subject, body, to)
	})
	if err != nil {
		p.logger.Warn("email dispatch failed", "to", to, "error", err)
	}
}

// Run subscribes to risk.output and publishes to decision.output until ctx
// is canceled.
func (p *Processor) Run(ctx context.Context, b bus.Bus) error {
	sub := b.Subscribe("risk.output")
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
	var in models.RiskOutput
	if err := json.Unmarshal(payload, &in); err != nil {
		p.logger.Warn("dropping malformed risk.output message", "error", err)
		return
	}

	out := p.Process(ctx, in)

	encoded, err := json.Marshal(out)
	if err != nil {
		p.logger.Error("failed to encode decision.output", "error", err)
		return
	}
	b.Publish("decision.output", encoded)
}
