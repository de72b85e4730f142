package summarizer

import (
	"context"
	"fmt"
	"strings"
)

const localModelID = "local-heuristic"

// LocalSummarizer is an in-process, dependency-free "model" variant
// — no local LLM runtime is part of the
// retrieved stack (see DESIGN.md), so this produces a slightly more
// narrative rendering than the template by reordering evidence around
// the dominant risk driver, without calling out to any network service.
type LocalSummarizer struct{}

func NewLocalSummarizer() *LocalSummarizer { return &LocalSummarizer{} }

func (s *LocalSummarizer) Summarize(_ context.Context, p Prompt) (string, string, error) {
	driver := dominantComponent(p)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Truck %s triggered a %s-risk assessment (score %.2f, confidence %.2f) driven primarily by %s.",
		p.TruckID, strings.ToLower(p.RiskLevel), p.CompositeScore, p.Confidence, driver)
	if len(p.TriggeredRules) > 0 {
		fmt.Fprintf(&sb, " Flags raised: %s.", strings.Join(p.TopTwoRules(), ", "))
	}
	if p.RuleName != "" {
		fmt.Fprintf(&sb, " Rule \"%s\" fired, taking action(s): %s.", p.RuleName, strings.Join(p.ActionsTaken, ", "))
	} else {
		sb.WriteString(" No rule condition was met, so no alert was dispatched.")
	}
	return sb.String(), localModelID, nil
}

func dominantComponent(p Prompt) string {
	max := p.Behaviour
	label := "behavioural anomaly"
	if p.Twin > max {
		max, label = p.Twin, "digital-twin deviation"
	}
	if p.Route > max {
		max, label = p.Route, "route/geofence risk"
	}
	if p.Temporal > max {
		label = "time-of-day amplification"
	}
	return label
}

var _ Summarizer = (*LocalSummarizer)(nil)
