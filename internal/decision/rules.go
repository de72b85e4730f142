// Package decision implements the Decision Processor: an ordered,
// data-driven rule table matched against fused risk, with per-(truck,rule)
// cooldowns and pluggable notification actions. Rules are encoded as data
// so the test suite
// can parameterize over the table.
package decision

import (
	"time"

	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

// Rule is one row of the priority-ordered rule table.
type Rule struct {
	ID       string
	Name     string
	Priority int
	Match    func(composite float64) bool
	Actions  []models.Action
	Cooldown time.Duration
}

// DefaultRules is the standard rule table, in priority order (lowest
// first — the first matching rule wins).
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "R001",
			Name:     "Critical threshold breach",
			Priority: 1,
			Match:    func(c float64) bool { return c >= 0.85 },
			Actions:  []models.Action{models.ActionSMS, models.ActionEmail, models.ActionLogIncident},
			Cooldown: 300 * time.Second,
		},
		{
			ID:       "R002",
			Name:     "High risk",
			Priority: 2,
			Match:    func(c float64) bool { return c >= 0.65 && c < 0.85 },
			Actions:  []models.Action{models.ActionEmail, models.ActionLogIncident},
			Cooldown: 600 * time.Second,
		},
		{
			ID:       "R003",
			Name:     "Medium risk",
			Priority: 3,
			Match:    func(c float64) bool { return c >= 0.45 && c < 0.65 },
			Actions:  []models.Action{models.ActionLogIncident},
			Cooldown: 1800 * time.Second,
		},
	}
}

// firstMatch walks rules in priority order and returns the first one whose
// Match predicate is satisfied. Rules are assumed pre-sorted by Priority.
func firstMatch(rules []Rule, composite float64) (Rule, bool) {
	for _, r := range rules {
		if r.Match(composite) {
			return r, true
		}
	}
	return Rule{}, false
}
