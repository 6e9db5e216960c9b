// Package circuitbreaker implements the Layer-0 adaptive circuit
// breaker (C6): a classic closed/open/half-open FSM, plus a latency
// histogram and a work-shedding degradation ladder. It wraps the whole
// Layer-0 call — admitting or denying it — and, independently of
// admission, tracks a degradation level the orchestrator consults to
// decide whether optional stages (C2, C5) run at all.
//
// The breaker sheds work, never suspicion: degrading never lowers
// FailureThreshold, never weakens tagging, and never turns a Lane-3
// case into Lane-1. It only skips optional analysis under load.
//
// All fields are integer atomics rather than a single mutex: the
// Open→HalfOpen transition must be observed exactly once per reset
// window even under concurrent callers, and a compare-and-swap on the
// state field gives that guarantee directly.
package circuitbreaker

import (
	"sync/atomic"
	"time"
)

// State is the breaker's admission state.
type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

// String returns the stable observability label: "Closed", "Open",
// "HalfOpen".
func (s State) String() string {
	switch s {
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return "Closed"
	}
}

// DegradationLevel is the totally ordered work-shedding ladder.
// Transitions are ±1 only.
type DegradationLevel int32

const (
	Normal DegradationLevel = iota
	L3Only
	L2Only
	L1Only
	StaticOnly
)

func (d DegradationLevel) String() string {
	switch d {
	case L3Only:
		return "L3Only"
	case L2Only:
		return "L2Only"
	case L1Only:
		return "L1Only"
	case StaticOnly:
		return "StaticOnly"
	default:
		return "Normal"
	}
}

// Config holds the breaker's tunables. Tests may override these with
// small values; production uses DefaultConfig.
type Config struct {
	FailureThreshold uint32
	ResetTimeout     time.Duration
	LatencyThreshold time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 10,
		ResetTimeout:     30 * time.Second,
		LatencyThreshold: 5 * time.Millisecond,
	}
}

const histogramBuckets = 10

// Breaker is the adaptive circuit breaker. The zero value is not
// usable; construct with New.
type Breaker struct {
	cfg   Config
	clock Clock

	state         atomic.Int32 // State
	failureCount  atomic.Uint32
	lastFailureMs atomic.Int64 // unix ms

	histogram [histogramBuckets]atomic.Uint64

	degradation   atomic.Int32 // DegradationLevel
	successStreak atomic.Uint32
}

// recoveryStreak is how many consecutive fast results count as
// "sustained recovery" and earn one TryRecover attempt. The attempt
// still has to clear the adaptive-threshold gate.
const recoveryStreak = 64

// New creates a Breaker in the Closed state.
func New(cfg Config, clock Clock) *Breaker {
	if clock == nil {
		clock = RealClock
	}
	return &Breaker{cfg: cfg, clock: clock}
}

// State returns the current admission state as last stored; it never
// performs the Open→HalfOpen transition itself — only CheckAllow's
// CAS does that.
func (b *Breaker) State() State {
	return State(b.state.Load())
}

// GetStateName returns the current state's stable label.
func (b *Breaker) GetStateName() string {
	return b.State().String()
}

// CheckAllow decides whether to admit a call. In Closed and HalfOpen
// it always allows. In Open it denies until the reset timeout has
// elapsed; the first caller to observe the expiry wins a
// compare-and-swap into HalfOpen and is let through — every other
// concurrent caller in that instant is denied or, if they land after
// the swap, admitted as a second half-open probe.
func (b *Breaker) CheckAllow() bool {
	switch State(b.state.Load()) {
	case Closed, HalfOpen:
		return true
	case Open:
		lastFailure := time.UnixMilli(b.lastFailureMs.Load())
		if b.clock.Now().Before(lastFailure.Add(b.cfg.ResetTimeout)) {
			return false
		}
		if b.state.CompareAndSwap(int32(Open), int32(HalfOpen)) {
			return true
		}
		// Another goroutine already won the CAS; only admit if it
		// landed in HalfOpen (never if a racing failure reopened it).
		return State(b.state.Load()) == HalfOpen
	default:
		return false
	}
}

// RecordResult feeds one call's observed latency back into the
// breaker: it updates the latency histogram unconditionally, applies
// the closed/half-open success/failure transition rules, and drives
// the degradation ladder — one step down on every trip, one attempted
// step up after a sustained streak of fast results.
func (b *Breaker) RecordResult(d time.Duration) {
	b.observe(d)

	success := d <= b.cfg.LatencyThreshold
	now := b.clock.Now()

	if success {
		if b.successStreak.Add(1) >= recoveryStreak {
			b.successStreak.Store(0)
			b.TryRecover()
		}
	} else {
		b.successStreak.Store(0)
	}

	switch State(b.state.Load()) {
	case Closed:
		if success {
			b.failureCount.Store(0)
			return
		}
		if b.failureCount.Add(1) >= b.cfg.FailureThreshold {
			if b.state.CompareAndSwap(int32(Closed), int32(Open)) {
				b.lastFailureMs.Store(now.UnixMilli())
				b.Degrade()
			}
		}
	case HalfOpen:
		if success {
			if b.state.CompareAndSwap(int32(HalfOpen), int32(Closed)) {
				b.failureCount.Store(0)
			}
			return
		}
		if b.state.CompareAndSwap(int32(HalfOpen), int32(Open)) {
			b.lastFailureMs.Store(now.UnixMilli())
			b.failureCount.Store(0)
			b.Degrade()
		}
	case Open:
		// A result arriving while open (e.g. a probe that was admitted
		// right as the window expired) only ever refreshes the trip
		// timer on failure; it never reopens what's already open.
		if !success {
			b.lastFailureMs.Store(now.UnixMilli())
		}
	}
}

// RecordIncident folds a non-latency failure (a recovered panic in
// the pipeline) into the breaker as if the call had breached the
// latency threshold.
func (b *Breaker) RecordIncident() {
	b.RecordResult(b.cfg.LatencyThreshold + time.Millisecond)
}

func (b *Breaker) observe(d time.Duration) {
	bucket := int(d / time.Millisecond)
	if bucket >= histogramBuckets {
		bucket = histogramBuckets - 1
	}
	if bucket < 0 {
		bucket = 0
	}
	b.histogram[bucket].Add(1)
}

// AdaptiveThreshold returns the smallest bucket boundary whose
// cumulative count reaches the 95th percentile of observed latencies,
// or 5ms if nothing has been observed yet.
func (b *Breaker) AdaptiveThreshold() time.Duration {
	var total uint64
	counts := make([]uint64, histogramBuckets)
	for i := range counts {
		counts[i] = b.histogram[i].Load()
		total += counts[i]
	}
	if total == 0 {
		return 5 * time.Millisecond
	}

	target := (total*95 + 99) / 100 // ceil(0.95 * total)
	var cum uint64
	for i, c := range counts {
		cum += c
		if cum >= target {
			return time.Duration(i) * time.Millisecond
		}
	}
	return (histogramBuckets - 1) * time.Millisecond
}

// Degrade moves the work-shedding ladder one step down, toward
// StaticOnly. It is idempotent at the bottom of the ladder.
func (b *Breaker) Degrade() DegradationLevel {
	for {
		cur := DegradationLevel(b.degradation.Load())
		if cur >= StaticOnly {
			return cur
		}
		next := cur + 1
		if b.degradation.CompareAndSwap(int32(cur), int32(next)) {
			return next
		}
	}
}

// TryRecover moves the ladder one step up, toward Normal, but only
// when the adaptive threshold indicates sustained recovery
// (< 3ms). It is a no-op otherwise.
func (b *Breaker) TryRecover() DegradationLevel {
	if b.AdaptiveThreshold() >= 3*time.Millisecond {
		return DegradationLevel(b.degradation.Load())
	}
	for {
		cur := DegradationLevel(b.degradation.Load())
		if cur <= Normal {
			return cur
		}
		next := cur - 1
		if b.degradation.CompareAndSwap(int32(cur), int32(next)) {
			return next
		}
	}
}

// DegradationLevel returns the current work-shedding level.
func (b *Breaker) DegradationLevel() DegradationLevel {
	return DegradationLevel(b.degradation.Load())
}

// ShouldSkipOptional reports whether optional stages (C2, C5) should
// be skipped this call. Home (latencyAdaptiveSecurity=false) never
// sheds; Enterprise sheds once degradation reaches L2Only or worse.
// Taking a bare bool instead of the layer0.ProfileFlags type keeps
// this package free of any dependency on the orchestrator's types.
func (b *Breaker) ShouldSkipOptional(latencyAdaptiveSecurity bool) bool {
	if !latencyAdaptiveSecurity {
		return false
	}
	return b.DegradationLevel() >= L2Only
}
