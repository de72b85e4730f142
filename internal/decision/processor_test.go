package decision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/incidentarchive"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/statestore"
	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

type recordingNotifier struct {
	mu     sync.Mutex
	sms    []string
	emails []string
}

func (n *recordingNotifier) SMS(_ context.Context, text, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sms = append(n.sms, text)
	return nil
}

func (n *recordingNotifier) Email(_ context.Context, subject, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, subject)
	return nil
}

func riskAt(score float64) models.RiskOutput {
	return models.RiskOutput{
		TruckID:        "TRUCK-001",
		IncidentID:     "inc-1",
		Timestamp:      time.Now(),
		CompositeScore: score,
		RiskLevel:      models.RiskHigh,
	}
}

func TestRuleMatrix(t *testing.T) {
	cases := []struct {
		name      string
		score     float64
		wantRule  string
		wantTaken []models.Action
	}{
		{"critical boundary", 0.85, "R001", []models.Action{models.ActionSMS, models.ActionEmail, models.ActionLogIncident}},
		{"high boundary", 0.65, "R002", []models.Action{models.ActionEmail, models.ActionLogIncident}},
		{"just below critical", 0.84, "R002", []models.Action{models.ActionEmail, models.ActionLogIncident}},
		{"medium boundary", 0.45, "R003", []models.Action{models.ActionLogIncident}},
		{"just below medium", 0.44, "", nil},
		{"zero", 0, "", nil},
		{"max", 1, "R001", []models.Action{models.ActionSMS, models.ActionEmail, models.ActionLogIncident}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := &recordingNotifier{}
			p := New(statestore.New(statestore.NewMemoryKV()), n, nil)

			out := p.Process(context.Background(), riskAt(tc.score))

			if tc.wantRule == "" {
				assert.Nil(t, out.RuleID)
				assert.False(t, out.AlertSuppressed)
				assert.Empty(t, out.ActionsTaken)
				return
			}
			require.NotNil(t, out.RuleID)
			assert.Equal(t, tc.wantRule, *out.RuleID)
			assert.Equal(t, tc.wantTaken, out.ActionsTaken)
			assert.False(t, out.AlertSuppressed)
		})
	}
}

func TestCooldownSuppressesSecondFiring(t *testing.T) {
	n := &recordingNotifier{}
	p := New(statestore.New(statestore.NewMemoryKV()), n, nil)

	first := p.Process(context.Background(), riskAt(0.9))
	require.NotNil(t, first.RuleID)
	assert.False(t, first.AlertSuppressed)
	assert.Len(t, n.sms, 1)
	assert.Len(t, n.emails, 1)

	second := p.Process(context.Background(), riskAt(0.92))
	require.NotNil(t, second.RuleID)
	assert.Equal(t, "R001", *second.RuleID)
	assert.True(t, second.AlertSuppressed)
	assert.NotEmpty(t, second.SuppressedReason)
	assert.Empty(t, second.ActionsTaken)

	// No new notifications went out while suppressed.
	assert.Len(t, n.sms, 1)
	assert.Len(t, n.emails, 1)
}

func TestCooldownsAreScopedPerTruckAndRule(t *testing.T) {
	n := &recordingNotifier{}
	p := New(statestore.New(statestore.NewMemoryKV()), n, nil)

	critical := riskAt(0.9)
	_ = p.Process(context.Background(), critical)

	// A different rule for the same truck is not suppressed.
	medium := riskAt(0.5)
	out := p.Process(context.Background(), medium)
	require.NotNil(t, out.RuleID)
	assert.Equal(t, "R003", *out.RuleID)
	assert.False(t, out.AlertSuppressed)

	// The same rule for a different truck is not suppressed.
	other := riskAt(0.9)
	other.TruckID = "TRUCK-002"
	out = p.Process(context.Background(), other)
	require.NotNil(t, out.RuleID)
	assert.False(t, out.AlertSuppressed)
}

// failKV simulates an unreachable backing store: every call errors.
type failKV struct{}

var errUnreachable = errors.New("store unreachable")

func (failKV) Get(context.Context, string) ([]byte, error) { return nil, errUnreachable }
func (failKV) Set(context.Context, string, []byte) error   { return errUnreachable }
func (failKV) SetEx(context.Context, string, []byte, time.Duration) error {
	return errUnreachable
}
func (failKV) Exists(context.Context, string) (bool, error) { return false, errUnreachable }
func (failKV) Del(context.Context, string) error            { return errUnreachable }
func (failKV) ListPushTrim(context.Context, string, []byte, int) error {
	return errUnreachable
}
func (failKV) ListRange(context.Context, string) ([][]byte, error) { return nil, errUnreachable }

func TestUnreachableCooldownStoreFiresEveryTime(t *testing.T) {
	n := &recordingNotifier{}
	p := New(statestore.New(failKV{}), n, nil)

	for i := 0; i < 3; i++ {
		out := p.Process(context.Background(), riskAt(0.9))
		require.NotNil(t, out.RuleID)
		assert.False(t, out.AlertSuppressed, "iteration %d", i)
	}
	assert.Len(t, n.sms, 3)
}

func TestFiredDecisionIsArchived(t *testing.T) {
	archive := incidentarchive.NewMemoryArchive()
	p := New(statestore.New(statestore.NewMemoryKV()), &recordingNotifier{}, archive)

	_ = p.Process(context.Background(), riskAt(0.9))

	recs, err := archive.Recent(context.Background(), "TRUCK-001", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "R001", recs[0].RuleID)
	assert.Equal(t, "inc-1", recs[0].IncidentID)

	// A suppressed repeat is not archived.
	_ = p.Process(context.Background(), riskAt(0.9))
	recs, err = archive.Recent(context.Background(), "TRUCK-001", 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRuleTableOrderingFirstMatchWins(t *testing.T) {
	rules := DefaultRules()
	for _, score := range []float64{0.45, 0.55, 0.65, 0.75, 0.85, 0.95} {
		matched := 0
		for _, r := range rules {
			if r.Match(score) {
				matched++
			}
		}
		assert.Equal(t, 1, matched, "score %v must match exactly one rule", score)
	}
}
