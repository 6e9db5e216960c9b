package ratestats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests drive Stats without sleeping real wall-clock
// time, per the clock-abstraction design note.
type fakeClock struct{ ms int64 }

func (c *fakeClock) now() int64 { return c.ms }
func (c *fakeClock) advance(d int64) { c.ms += d }

func newStatsWithClock(window int, c *fakeClock) *Stats {
	s := NewStats(window)
	s.nowMs = c.now
	return s
}

func TestEmptyStatsIsNormal(t *testing.T) {
	clk := &fakeClock{ms: 1_000_000}
	s := newStatsWithClock(DefaultWindow, clk)
	assert.Equal(t, 0, s.RequestsPerSecond())
	assert.Equal(t, 0.0, s.BurstinessScore())
	assert.Equal(t, Normal, s.RateState())
}

func TestRequestsPerSecondUniformInterval(t *testing.T) {
	clk := &fakeClock{ms: 1_000_000}
	s := newStatsWithClock(100, clk)

	// 100 requests at 10ms apart => expect min(W, 1000/delta) =
	// min(100, 100) = 100 within ±1; the oldest slot lands exactly on
	// the 1000ms boundary and is excluded, so 99 are counted.
	for i := 0; i < 100; i++ {
		s.Record()
		clk.advance(10)
	}

	rps := s.RequestsPerSecond()
	assert.InDelta(t, 100, rps, 2)
}

func TestBurstFromOneIPProducesInsane(t *testing.T) {
	clk := &fakeClock{ms: 5_000_000}
	tracker := NewTracker(DefaultWindow)
	tracker.nowMs = clk.now

	for i := 0; i < 30; i++ {
		st := tracker.Record("10.0.0.5")
		clk.advance(10)
		_ = st
	}

	st, ok := tracker.Get("10.0.0.5")
	require.True(t, ok)
	assert.Equal(t, Insane, st.RateState())
}

func TestIsAutomatedRequiresLowBurstinessAndHighRPS(t *testing.T) {
	clk := &fakeClock{ms: 1_000_000}
	s := newStatsWithClock(50, clk)

	for i := 0; i < 20; i++ {
		s.Record()
		clk.advance(10) // perfectly uniform -> low burstiness
	}

	assert.True(t, s.IsAutomated())
}

func TestCleanupInactiveDropsSilentIPs(t *testing.T) {
	clk := &fakeClock{ms: 1_000_000}
	tracker := NewTracker(DefaultWindow)
	tracker.nowMs = clk.now

	tracker.Record("10.0.0.9")
	clk.advance(10_000)

	dropped := tracker.CleanupInactive(5_000)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 0, tracker.Len())
}

func TestCleanupInactiveKeepsActiveIPs(t *testing.T) {
	clk := &fakeClock{ms: 1_000_000}
	tracker := NewTracker(DefaultWindow)
	tracker.nowMs = clk.now

	tracker.Record("10.0.0.10")
	clk.advance(1_000)

	dropped := tracker.CleanupInactive(5_000)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, 1, tracker.Len())
}
