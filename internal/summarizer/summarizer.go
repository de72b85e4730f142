// Package summarizer implements the Explainability Processor's
// Summarizer boundary: three variants (template, remote, local) behind
// one interface, with any remote failure degrading to the template.
package summarizer

import (
	"context"
	"fmt"
	"strings"
	"text/template"
)

// Summarizer is the boundary to natural-language generation.
type Summarizer interface {
	// Summarize returns the explanation text and the model/variant id that
	// produced it.
	Summarize(ctx context.Context, prompt Prompt) (text string, modelID string, err error)
}

// Prompt is the structured evidence the Explainability Processor hands
// to a Summarizer: truck, timestamp, level, score, confidence, rule name,
// fusion method, component scores, triggered rules, actions.
type Prompt struct {
	TruckID        string
	Timestamp      string
	RiskLevel      string
	CompositeScore float64
	Confidence     float64
	RuleName       string
	FusionMethod   string
	Behaviour      float64
	Twin           float64
	Route          float64
	Temporal       float64
	TriggeredRules []string
	ActionsTaken   []string
}

// TopTwoRules returns at most the first two triggered-rule tags, in the
// order they were raised — the template's "top two triggered rules"
// requirement.
func (p Prompt) TopTwoRules() []string {
	if len(p.TriggeredRules) <= 2 {
		return p.TriggeredRules
	}
	return p.TriggeredRules[:2]
}

const templateID = "template"

// explanationTemplate renders a 3-4 sentence statement containing all
// numeric evidence and the top two triggered rules.
var explanationTemplate = template.Must(template.New("explanation").Parse(
	`Truck {{.TruckID}} was assessed at {{.RiskLevel}} risk ({{printf "%.2f" .CompositeScore}} composite score, {{printf "%.2f" .Confidence}} confidence) at {{.Timestamp}}, computed via {{.FusionMethod}} fusion. ` +
		`Component scores were behaviour {{printf "%.2f" .Behaviour}}, digital-twin deviation {{printf "%.2f" .Twin}}, route risk {{printf "%.2f" .Route}}, and temporal {{printf "%.2f" .Temporal}}. ` +
		`{{if .TopRules}}The leading factors were {{.TopRules}}. {{end}}` +
		`{{if .RuleName}}This triggered rule "{{.RuleName}}", resulting in actions: {{.Actions}}.{{else}}No decision rule matched, so no alert action was taken.{{end}}`,
))

// TemplateSummarizer is the always-available, dependency-free variant.
type TemplateSummarizer struct{}

func NewTemplateSummarizer() *TemplateSummarizer { return &TemplateSummarizer{} }

func (s *TemplateSummarizer) Summarize(_ context.Context, p Prompt) (string, string, error) {
	var sb strings.Builder
	data := struct {
		Prompt
		TopRules string
		Actions  string
	}{
		Prompt:   p,
		TopRules: strings.Join(p.TopTwoRules(), " and "),
		Actions:  strings.Join(p.ActionsTaken, ", "),
	}
	if err := explanationTemplate.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("summarizer: template execute: %w", err)
	}
	return sb.String(), templateID, nil
}

var _ Summarizer = (*TemplateSummarizer)(nil)
