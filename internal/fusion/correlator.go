package fusion

import (
	"sync"
	"time"

	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

// defaultStalenessWindow is signal_staleness_s.
const defaultStalenessWindow = 10 * time.Second

type slot struct {
	behaviour   *models.BehaviourOutput
	behaviourAt time.Time
	twin        *models.TwinOutput
	twinAt      time.Time
	route       *models.RouteOutput
	routeAt     time.Time
}

func (s *slot) complete() bool {
	return s.behaviour != nil && s.twin != nil && s.route != nil
}

func (s *slot) allFresh(now time.Time, window time.Duration) bool {
	return now.Sub(s.behaviourAt) < window && now.Sub(s.twinAt) < window && now.Sub(s.routeAt) < window
}

func (s *slot) clear() {
	*s = slot{}
}

// correlator maintains per-truck {behaviour, twin, route} slots and fires
// when all three are populated and fresh. One mutex guards the truck-key
// map, held for the whole update+eligibility check.
type correlator struct {
	mu              sync.Mutex
	slots           map[string]*slot
	stalenessWindow time.Duration
	now             func() time.Time
}

func newCorrelator(stalenessWindow time.Duration) *correlator {
	if stalenessWindow <= 0 {
		stalenessWindow = defaultStalenessWindow
	}
	return &correlator{
		slots:           make(map[string]*slot),
		stalenessWindow: stalenessWindow,
		now:             time.Now,
	}
}

func (c *correlator) slotFor(truckID string) *slot {
	s, ok := c.slots[truckID]
	if !ok {
		s = &slot{}
		c.slots[truckID] = s
	}
	return s
}

// fusionInput is the bundle correlator hands to the scorer once a truck's
// slot is complete and fresh.
type fusionInput struct {
	behaviour models.BehaviourOutput
	twin      models.TwinOutput
	route     models.RouteOutput
	ages      models.SignalAges
}

func (c *correlator) onBehaviour(truckID string, b models.BehaviourOutput) (fusionInput, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.slotFor(truckID)
	s.behaviour = &b
	s.behaviourAt = c.now()
	return c.tryFire(s)
}

func (c *correlator) onTwin(truckID string, tw models.TwinOutput) (fusionInput, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.slotFor(truckID)
	s.twin = &tw
	s.twinAt = c.now()
	return c.tryFire(s)
}

func (c *correlator) onRoute(truckID string, r models.RouteOutput) (fusionInput, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.slotFor(truckID)
	s.route = &r
	s.routeAt = c.now()
	return c.tryFire(s)
}

func (c *correlator) tryFire(s *slot) (fusionInput, bool) {
	if !s.complete() {
		return fusionInput{}, false
	}
	now := c.now()
	if !s.allFresh(now, c.stalenessWindow) {
		return fusionInput{}, false // stale signal ignored; slot persists until refreshed
	}

	input := fusionInput{
		behaviour: *s.behaviour,
		twin:      *s.twin,
		route:     *s.route,
		ages: models.SignalAges{
			BehaviourAgeS: now.Sub(s.behaviourAt).Seconds(),
			TwinAgeS:      now.Sub(s.twinAt).Seconds(),
			RouteAgeS:     now.Sub(s.routeAt).Seconds(),
		},
	}
	s.clear()
	return input, true
}
