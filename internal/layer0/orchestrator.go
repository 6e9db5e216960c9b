package layer0

import (
	"time"

	"github.com/ocx/mirage-layer0/internal/circuitbreaker"
	"github.com/ocx/mirage-layer0/internal/noise"
	"github.com/ocx/mirage-layer0/internal/noisebloom"
	"github.com/ocx/mirage-layer0/internal/protocol"
	"github.com/ocx/mirage-layer0/internal/ratestats"
	"github.com/ocx/mirage-layer0/internal/verdictcache"
)

// Orchestrator wires C1-C7 together behind a single Process call (C8).
// It holds no payload-specific state between calls; everything it
// touches is either read-only after construction or one of the
// bounded, internally-synchronized collaborators below.
type Orchestrator struct {
	profile ProfileFlags

	noiseDetector *noise.Detector
	cache         *verdictcache.Cache[Verdict]
	rates         *ratestats.Tracker
	bloom         *noisebloom.Filter
	breaker       *circuitbreaker.Breaker

	clock func() time.Time
}

// Config bundles the orchestrator's construction-time tunables, one
// field per wired collaborator.
type Config struct {
	Profile ProfileFlags

	VerdictCacheSize int
	VerdictCacheTTL  time.Duration

	RateWindow int

	BloomExpectedElements uint64
	BloomFalsePositive    float64

	Breaker circuitbreaker.Config
}

// DefaultConfig returns HOME-profile defaults sized for a single
// front-line listener.
func DefaultConfig() Config {
	return Config{
		Profile:               HomeProfile(),
		VerdictCacheSize:      10_000,
		VerdictCacheTTL:       10 * time.Minute,
		RateWindow:            ratestats.DefaultWindow,
		BloomExpectedElements: 100_000,
		BloomFalsePositive:    0.01,
		Breaker:               circuitbreaker.DefaultConfig(),
	}
}

// NewOrchestrator builds an Orchestrator from cfg, wiring a fresh
// instance of every collaborator.
func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{
		profile:       cfg.Profile,
		noiseDetector: noise.NewDetector(),
		cache:         verdictcache.New[Verdict](cfg.VerdictCacheSize, cfg.VerdictCacheTTL),
		rates:         ratestats.NewTracker(cfg.RateWindow),
		bloom:         noisebloom.New(cfg.BloomExpectedElements, cfg.BloomFalsePositive),
		breaker:       circuitbreaker.New(cfg.Breaker, circuitbreaker.RealClock),
		clock:         time.Now,
	}
}

// BreakerStateName exposes get_state_name() for observability.
func (o *Orchestrator) BreakerStateName() string {
	return o.breaker.GetStateName()
}

// CleanupInactiveSources reaps rate-tracker entries idle longer than
// maxAge and returns how many were dropped. Callers run this on their
// own periodic schedule; the hot path never does.
func (o *Orchestrator) CleanupInactiveSources(maxAge time.Duration) int {
	return o.rates.CleanupInactive(maxAge.Milliseconds())
}

// Process runs a single payload through C1-C7 and returns the
// resulting Layer0Output, storing its verdict into C3 along the way.
// It never blocks on I/O and is safe to call concurrently from many
// worker goroutines.
//
// A panic anywhere in the pipeline is caught here and converted into
// a FastFake output tagged PROBABLE_NOISE; the breaker counts the
// incident as a failure.
func (o *Orchestrator) Process(sourceIP string, payload []byte) (out Layer0Output) {
	if !o.breaker.CheckAllow() {
		// Fail-open: deny means "don't do extra work", not "drop the
		// connection" — only an ENTERPRISE caller with DropEnabled set
		// may turn this into an actual drop.
		return Layer0Output{
			ResponseProfile: FastFake,
			Tags:            0,
			Escalate:        false,
		}
	}

	defer func() {
		if r := recover(); r != nil {
			o.breaker.RecordIncident()
			out = Layer0Output{
				ResponseProfile: FastFake,
				Tags:            TagProbableNoise,
				Escalate:        false,
			}
		}
	}()

	start := o.clock()

	var tags TagSet
	var score SuspicionScore

	proto := protocol.Classify(payload)
	if proto == protocol.Unknown {
		tags |= TagProtoUnknown
		score = score.Add(5)
	}

	cacheKey := verdictcache.Key(sourceIP, payload)
	if prior, ok := o.cache.Get(cacheKey); ok {
		tags |= TagRepeatedProbe
		switch prior {
		case KnownNoise:
			score = score.Add(5)
		case NeedsL1:
			score = score.Add(10)
		}
	}

	skipOptional := o.breaker.ShouldSkipOptional(o.profile.LatencyAdaptiveSecurity)

	noiseMatched := false
	if !skipOptional {
		if m, ok := o.noiseDetector.Match(payload); ok {
			switch m.Group {
			case noise.GroupScanner:
				tags |= TagProbableNoise
				score = score.Add(5)
				noiseMatched = true
			case noise.GroupExploit:
				tags |= TagExploitHint
				score = score.Add(40)
			case noise.GroupSpray:
				tags |= TagProbableNoise
				score = score.Add(10)
				noiseMatched = true
			case noise.GroupBinaryJunk:
				tags |= TagProbableNoise
				score = score.Add(5)
				noiseMatched = true
			}
		}
	}

	st := o.rates.Record(sourceIP)
	switch st.RateState() {
	case ratestats.Bursty:
		tags |= TagBursty
		score = score.Add(5)
	case ratestats.Insane:
		tags |= TagBursty | TagOddCadence
		score = score.Add(15)
	}

	bloomShortCircuit := false
	if !skipOptional && o.bloom.IsProbableNoise(sourceIP, payload) {
		tags |= TagProbableNoise
		score = score.Add(3)
		if o.profile.BloomDrop {
			bloomShortCircuit = true
		}
	}

	var profile ResponseProfile
	var escalate bool
	var verdict Verdict
	if bloomShortCircuit {
		profile = FastFake
		escalate = false
		verdict = KnownNoise
	} else {
		profile = Route(proto, score, tags)
		escalate = profile == Mirror
		verdict = verdictFor(profile, tags)
	}

	// The bloom remembers only payloads actually judged noise (an
	// exploit marker is interesting, not noise) — never every payload,
	// or benign repeats would start tagging as noise too.
	if !skipOptional && (noiseMatched || verdict == KnownNoise) {
		o.bloom.MarkNoise(sourceIP, payload)
	}

	elapsed := o.clock().Sub(start)
	o.breaker.RecordResult(elapsed)

	o.cache.Set(cacheKey, verdict)

	return Layer0Output{
		ProtoGuess:      proto,
		ResponseProfile: profile,
		Tags:            tags,
		Escalate:        escalate,
		SuspicionScore:  score,
	}
}

// verdictFor implements C8 step 9's response-profile-to-verdict map.
func verdictFor(profile ResponseProfile, tags TagSet) Verdict {
	switch profile {
	case Mirror:
		return NeedsL1
	case SlowFake:
		if tags.Has(TagExploitHint) {
			return NeedsL1
		}
		return KnownNoise
	default:
		return Boring
	}
}
