package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

func TestBaselineFallsBackToDefaultWhenAbsent(t *testing.T) {
	s := New(NewMemoryKV())
	got := s.Baseline(context.Background(), "truck-1")
	assert.Equal(t, models.DefaultTwinBaseline(), got)
}

func TestBaselineFallsBackToDefaultWithNilBackend(t *testing.T) {
	s := New(nil)
	got := s.Baseline(context.Background(), "truck-1")
	assert.Equal(t, models.DefaultTwinBaseline(), got)
}

func TestSetAndGetBaseline(t *testing.T) {
	s := New(NewMemoryKV())
	baseline := models.TwinBaseline{ExpectedCargoWeightKg: 3000, MaxDeviationKm: 1}
	require.NoError(t, s.SetBaseline(context.Background(), "truck-1", baseline))

	got := s.Baseline(context.Background(), "truck-1")
	assert.Equal(t, baseline, got)
}

func TestCooldownSetAndCheck(t *testing.T) {
	s := New(NewMemoryKV())
	ctx := context.Background()
	assert.False(t, s.OnCooldown(ctx, "truck-1", "R001"))

	require.NoError(t, s.SetCooldown(ctx, "truck-1", "R001", time.Minute))
	assert.True(t, s.OnCooldown(ctx, "truck-1", "R001"))

	// Scoped to (truck, rule) — a different rule is unaffected.
	assert.False(t, s.OnCooldown(ctx, "truck-1", "R002"))
}

func TestCooldownFailsOpenWithNilBackend(t *testing.T) {
	s := New(nil)
	assert.False(t, s.OnCooldown(context.Background(), "truck-1", "R001"))
}

func TestIncidentLogCapsAndOrdersMostRecentFirst(t *testing.T) {
	s := New(NewMemoryKV())
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, s.PushIncident(ctx, "truck-1", IncidentSummary{
			IncidentID: string(rune('a' + i%26)),
			Timestamp:  time.Now(),
		}))
	}

	got := s.RecentIncidents(ctx, "truck-1")
	assert.Len(t, got, maxIncidentLog)
}

func TestRiskCacheLRUEviction(t *testing.T) {
	s := New(NewMemoryKV())

	for i := 0; i < maxRiskCache+10; i++ {
		s.CacheRisk(models.RiskOutput{IncidentID: string(rune(i))})
	}

	_, ok := s.CachedRisk(string(rune(0)))
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = s.CachedRisk(string(rune(maxRiskCache + 9)))
	assert.True(t, ok, "most recent entry should still be cached")
}

func TestSignalRoundTrip(t *testing.T) {
	s := New(NewMemoryKV())
	ctx := context.Background()

	require.NoError(t, s.SetSignal(ctx, "truck-1", "behaviour", []byte("payload"), 10*time.Second))
	got, ok := s.GetSignal(ctx, "truck-1", "behaviour")
	require.True(t, ok)
	assert.Equal(t, "payload", string(got))
}
