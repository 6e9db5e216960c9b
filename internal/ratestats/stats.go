// Package ratestats implements the Layer-0 rate stats and tracker
// (C4): a lock-free sliding window of recent request timestamps per
// source IP, with derived RPS, burstiness, and a coarse rate state.
// Slot writes may race across goroutines; torn reads are tolerated.
// The statistics are approximate, not exact.
package ratestats

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWindow is the default circular buffer size.
const DefaultWindow = 100

// RateState is the coarse classification derived from RPS and
// burstiness.
type RateState int

const (
	Normal RateState = iota
	Bursty
	Insane
)

func (s RateState) String() string {
	switch s {
	case Bursty:
		return "Bursty"
	case Insane:
		return "Insane"
	default:
		return "Normal"
	}
}

// Stats is a per-source circular buffer of wall-clock millisecond
// timestamps. A slot value of 0 means "never written"; every non-zero
// slot is a valid millisecond timestamp. All fields are integer
// atomics so concurrent Record calls from different workers never
// need a lock — and never produce undefined behavior even when two
// writers race on the same slot.
type Stats struct {
	window   int
	buf      []atomic.Int64
	writeIdx atomic.Uint64
	nowMs    func() int64
}

// NewStats creates a Stats with the given window size (W). A window
// of 0 or less falls back to DefaultWindow.
func NewStats(window int) *Stats {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Stats{
		window: window,
		buf:    make([]atomic.Int64, window),
		nowMs:  func() int64 { return time.Now().UnixMilli() },
	}
}

// Record stores the current time at the next circular slot.
func (s *Stats) Record() {
	idx := s.writeIdx.Add(1) - 1
	s.buf[int(idx)%s.window].Store(s.nowMs())
}

// snapshot returns a copy of the currently populated (non-zero) slots.
// Copying out of the atomic slots before sorting/computing keeps the
// derived-metric math simple without holding any lock across it.
func (s *Stats) snapshot() []int64 {
	out := make([]int64, 0, s.window)
	for i := range s.buf {
		if v := s.buf[i].Load(); v != 0 {
			out = append(out, v)
		}
	}
	return out
}

// RequestsPerSecond counts slots timestamped within the last 1000ms.
func (s *Stats) RequestsPerSecond() int {
	now := s.nowMs()
	count := 0
	for _, ts := range s.snapshot() {
		if now-ts < 1000 {
			count++
		}
	}
	return count
}

// BurstinessScore computes coefficient-of-variation over sorted
// inter-arrival deltas, halved and clamped to [0,1]. Fewer than two
// samples yields 0.
func (s *Stats) BurstinessScore() float64 {
	samples := s.snapshot()
	if len(samples) < 2 {
		return 0.0
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	deltas := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		deltas = append(deltas, float64(samples[i]-samples[i-1]))
	}
	if len(deltas) == 0 {
		return 0.0
	}

	var sum float64
	for _, d := range deltas {
		sum += d
	}
	mean := sum / float64(len(deltas))
	if mean == 0 {
		return 0.0
	}

	var variance float64
	for _, d := range deltas {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(deltas))
	stddev := math.Sqrt(variance)

	cv := stddev / mean
	score := cv / 2
	if score > 1.0 {
		return 1.0
	}
	return score
}

// IsAutomated reports whether the traffic looks clean and rhythmic
// enough to be a bot: high RPS, low burstiness.
func (s *Stats) IsAutomated() bool {
	return s.RequestsPerSecond() > 5 && s.BurstinessScore() < 0.3
}

// RateState classifies the source into the coarse Normal/Bursty/Insane
// ladder used by the orchestrator's tagging rules.
func (s *Stats) RateState() RateState {
	rps := s.RequestsPerSecond()
	burst := s.BurstinessScore()

	switch {
	case rps > 20 || (rps > 10 && burst > 0.8):
		return Insane
	case rps > 5 || burst > 0.6:
		return Bursty
	default:
		return Normal
	}
}

// lastActivity returns the newest non-zero timestamp in the buffer, or
// 0 if the buffer has never been written.
func (s *Stats) lastActivity() int64 {
	var newest int64
	for _, ts := range s.snapshot() {
		if ts > newest {
			newest = ts
		}
	}
	return newest
}

// Tracker maps source IP to its shared Stats, born on first packet and
// reaped by CleanupInactive after a period of silence.
type Tracker struct {
	mu     sync.Mutex
	byIP   map[string]*Stats
	window int
	nowMs  func() int64
}

// NewTracker creates a Tracker whose per-IP Stats use the given window
// size.
func NewTracker(window int) *Tracker {
	return &Tracker{
		byIP:   make(map[string]*Stats),
		window: window,
		nowMs:  func() int64 { return time.Now().UnixMilli() },
	}
}

// Record appends "now" to ip's sliding window, creating its Stats on
// first sight.
func (t *Tracker) Record(ip string) *Stats {
	t.mu.Lock()
	st, ok := t.byIP[ip]
	if !ok {
		st = NewStats(t.window)
		st.nowMs = t.nowMs
		t.byIP[ip] = st
	}
	t.mu.Unlock()

	st.Record()
	return st
}

// Get returns the Stats for ip without creating it.
func (t *Tracker) Get(ip string) (*Stats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.byIP[ip]
	return st, ok
}

// CleanupInactive drops every tracked IP whose newest timestamp is
// older than maxAgeMs (or that has never been written).
func (t *Tracker) CleanupInactive(maxAgeMs int64) int {
	now := t.nowMs()

	t.mu.Lock()
	defer t.mu.Unlock()

	dropped := 0
	for ip, st := range t.byIP {
		last := st.lastActivity()
		if last == 0 || now-last > maxAgeMs {
			delete(t.byIP, ip)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of currently tracked source IPs.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byIP)
}
