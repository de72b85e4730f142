// Package statestore implements the per-truck State Store: baselines,
// latest per-channel signals, cooldown keys, and a bounded incident/risk
// cache. A KV backend (Redis or in-memory) is injected; absence or failure
// of the backend never blocks the hot path — baseline lookups fall back to
// defaults and cooldown checks fail open (never on cooldown).
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

// ErrNotFound is returned by KV.Get when the key has no value.
var ErrNotFound = errors.New("statestore: key not found")

// KV is the minimal backend contract: get/set/setex/exists plus
// list-push-with-trim. Both RedisKV and MemoryKV satisfy it.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error) // ErrNotFound if absent
	Set(ctx context.Context, key string, value []byte) error
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, key string) error
	ListPushTrim(ctx context.Context, key string, value []byte, maxLen int) error
	ListRange(ctx context.Context, key string) ([][]byte, error)
}

// StateStore provides the typed operations processors actually call,
// built on top of a raw KV backend.
type StateStore struct {
	kv     KV
	logger *slog.Logger

	// riskCache is an in-process LRU for incident correlation (at most 100
	// entries). It is kept in-process rather than in the KV backend
	// because Explainability needs it even when no external store is
	// configured, and it is consulted on every decision event (hot path).
	riskCache *lruCache
}

const (
	freshnessMultiplier = 10 // signal TTL = 10x freshness window
	maxIncidentLog      = 50 // incidents:{truck} cap
	maxRiskCache        = 100
	storeCallTimeout    = time.Second // deadline for local store calls
	retryAttempts       = 3
)

// New builds a StateStore over the given KV backend. Pass nil to run
// with no backend at all; every call then takes its degrade path.
func New(kv KV) *StateStore {
	return &StateStore{
		kv:        kv,
		logger:    slog.Default().With("component", "statestore"),
		riskCache: newLRUCache(maxRiskCache),
	}
}

func baselineKey(truckID string) string { return "baseline:" + truckID }
func signalKey(truckID, channel string) string {
	return fmt.Sprintf("signal:%s:%s", truckID, channel)
}
func cooldownKey(truckID, ruleID string) string {
	return fmt.Sprintf("cooldown:%s:%s", truckID, ruleID)
}
func incidentsKey(truckID string) string { return "incidents:" + truckID }

// withRetry retries a transient KV operation up to retryAttempts times
// with exponential backoff.
func withRetry(ctx context.Context, op func() error) error {
	var err error
	backoff := 10 * time.Millisecond
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = op(); err == nil || errors.Is(err, ErrNotFound) {
			return err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}

// Baseline returns the truck's TwinBaseline, falling back to the package
// default when absent or when the backend is unreachable.
func (s *StateStore) Baseline(ctx context.Context, truckID string) models.TwinBaseline {
	if s.kv == nil {
		return models.DefaultTwinBaseline()
	}
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	var raw []byte
	err := withRetry(ctx, func() error {
		var e error
		raw, e = s.kv.Get(ctx, baselineKey(truckID))
		return e
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("baseline lookup degraded to default", "truck_id", truckID, "error", err)
		}
		return models.DefaultTwinBaseline()
	}

	var baseline models.TwinBaseline
	if jerr := json.Unmarshal(raw, &baseline); jerr != nil {
		s.logger.Warn("baseline corrupt, using default", "truck_id", truckID, "error", jerr)
		return models.DefaultTwinBaseline()
	}
	return baseline
}

// SetBaseline seeds or overwrites a truck's baseline. Baselines are
// read-mostly and carry no TTL.
func (s *StateStore) SetBaseline(ctx context.Context, truckID string, baseline models.TwinBaseline) error {
	if s.kv == nil {
		return nil
	}
	raw, err := json.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	return s.kv.Set(ctx, baselineKey(truckID), raw)
}

// SetSignal stores a channel's latest payload for a truck with a TTL of
// 10x freshnessWindow.
func (s *StateStore) SetSignal(ctx context.Context, truckID, channel string, payload []byte, freshnessWindow time.Duration) error {
	if s.kv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	ttl := freshnessWindow * freshnessMultiplier
	return withRetry(ctx, func() error {
		return s.kv.SetEx(ctx, signalKey(truckID, channel), payload, ttl)
	})
}

// GetSignal returns the truck's latest payload for a channel, if any.
func (s *StateStore) GetSignal(ctx context.Context, truckID, channel string) ([]byte, bool) {
	if s.kv == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	raw, err := s.kv.Get(ctx, signalKey(truckID, channel))
	if err != nil {
		return nil, false
	}
	return raw, true
}

// OnCooldown reports whether (truckID, ruleID) is currently suppressed. A
// backend failure fails open: the pair is treated as not on cooldown so
// alerts are never silently lost.
func (s *StateStore) OnCooldown(ctx context.Context, truckID, ruleID string) bool {
	if s.kv == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	var exists bool
	err := withRetry(ctx, func() error {
		var e error
		exists, e = s.kv.Exists(ctx, cooldownKey(truckID, ruleID))
		return e
	})
	if err != nil {
		s.logger.Warn("cooldown check degraded, treating as not-on-cooldown", "truck_id", truckID, "rule_id", ruleID, "error", err)
		return false
	}
	return exists
}

// SetCooldown sets the (truckID, ruleID) cooldown sentinel for ttl.
func (s *StateStore) SetCooldown(ctx context.Context, truckID, ruleID string, ttl time.Duration) error {
	if s.kv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	return s.kv.SetEx(ctx, cooldownKey(truckID, ruleID), []byte("1"), ttl)
}

// IncidentSummary is one entry in a truck's capped incident log.
type IncidentSummary struct {
	IncidentID string           `json:"incident_id"`
	Timestamp  time.Time        `json:"timestamp"`
	RiskLevel  models.RiskLevel `json:"risk_level"`
	RuleID     string           `json:"rule_id,omitempty"`
}

// PushIncident appends an incident summary to the truck's log (append at
// head, trim at tail, cap 50).
func (s *StateStore) PushIncident(ctx context.Context, truckID string, summary IncidentSummary) error {
	if s.kv == nil {
		return nil
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal incident summary: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	return withRetry(ctx, func() error {
		return s.kv.ListPushTrim(ctx, incidentsKey(truckID), raw, maxIncidentLog)
	})
}

// RecentIncidents returns the truck's capped incident log, most recent first.
func (s *StateStore) RecentIncidents(ctx context.Context, truckID string) []IncidentSummary {
	if s.kv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	raw, err := s.kv.ListRange(ctx, incidentsKey(truckID))
	if err != nil {
		return nil
	}
	out := make([]IncidentSummary, 0, len(raw))
	for _, r := range raw {
		var summary IncidentSummary
		if json.Unmarshal(r, &summary) == nil {
			out = append(out, summary)
		}
	}
	return out
}

// CacheRisk stores a RiskOutput for later incident-id correlation by the
// Explainability Processor. This is an in-process LRU independent of the
// KV backend.
func (s *StateStore) CacheRisk(risk models.RiskOutput) {
	s.riskCache.put(risk.IncidentID, risk)
}

// CachedRisk looks up a previously cached RiskOutput by incident id.
func (s *StateStore) CachedRisk(incidentID string) (models.RiskOutput, bool) {
	v, ok := s.riskCache.get(incidentID)
	if !ok {
		return models.RiskOutput{}, false
	}
	return v.(models.RiskOutput), true
}

const explanationTTL = 24 * time.Hour

func explanationKey(incidentID string) string { return "explanation:" + incidentID }

// SaveExplanation persists a generated explanation under
// explanation:{incident} with a 24h TTL.
func (s *StateStore) SaveExplanation(ctx context.Context, incidentID string, raw []byte) error {
	if s.kv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	return s.kv.SetEx(ctx, explanationKey(incidentID), raw, explanationTTL)
}

// GetExplanation returns a previously saved explanation, if still present.
func (s *StateStore) GetExplanation(ctx context.Context, incidentID string) ([]byte, bool) {
	if s.kv == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	raw, err := s.kv.Get(ctx, explanationKey(incidentID))
	if err != nil {
		return nil, false
	}
	return raw, true
}

// lruCache is a tiny bounded LRU used for risk_cache.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	order    []string
	values   map[string]interface{}
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		values:   make(map[string]interface{}, capacity),
	}
}

func (c *lruCache) put(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.values[key]; exists {
		c.removeFromOrder(key)
	}
	c.order = append(c.order, key)
	c.values[key] = value

	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.values, oldest)
	}
}

func (c *lruCache) get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if ok {
		c.removeFromOrder(key)
		c.order = append(c.order, key)
	}
	return v, ok
}

// removeFromOrder drops key from the recency order; callers hold c.mu.
func (c *lruCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
