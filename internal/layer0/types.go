// Package layer0 defines the shared data model for the inline deception
// front end (C9), the orchestrator that drives it (C8) and the 3-lane
// router (C7, route.go). The collaborator packages under internal/
// (protocol, noise, verdictcache, ratestats, noisebloom,
// circuitbreaker) are wired together here; none of them import this
// package back.
package layer0

import "github.com/ocx/mirage-layer0/internal/protocol"

// TagSet is a 32-bit additive bitset. Tags are only ever OR'd onto a
// Layer0Output during processing of a single payload — they never clear.
type TagSet uint32

const (
	TagProbableNoise TagSet = 1 << iota
	TagRepeatedProbe
	TagExploitHint
	TagBursty
	TagOddCadence
	TagProtoUnknown
)

// Has reports whether every bit in want is set in t.
func (t TagSet) Has(want TagSet) bool { return t&want == want }

// HasAny reports whether any bit in want is set in t.
func (t TagSet) HasAny(want TagSet) bool { return t&want != 0 }

// String renders the set tags for logging, e.g. "PROBABLE_NOISE|BURSTY".
func (t TagSet) String() string {
	if t == 0 {
		return "NONE"
	}
	names := []struct {
		bit  TagSet
		name string
	}{
		{TagProbableNoise, "PROBABLE_NOISE"},
		{TagRepeatedProbe, "REPEATED_PROBE"},
		{TagExploitHint, "EXPLOIT_HINT"},
		{TagBursty, "BURSTY"},
		{TagOddCadence, "ODD_CADENCE"},
		{TagProtoUnknown, "PROTO_UNKNOWN"},
	}
	out := ""
	for _, n := range names {
		if t.Has(n.bit) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "NONE"
	}
	return out
}

// SuspicionScore is a saturating unsigned 8-bit counter. It never
// decreases within the processing of a single payload.
type SuspicionScore uint8

// Add saturates at 255 instead of wrapping.
func (s SuspicionScore) Add(delta int) SuspicionScore {
	v := int(s) + delta
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return SuspicionScore(v)
}

// ResponseProfile is the lane a payload is routed to by C7.
type ResponseProfile int

const (
	FastFake ResponseProfile = iota
	SlowFake
	Mirror
)

func (r ResponseProfile) String() string {
	switch r {
	case FastFake:
		return "FastFake"
	case SlowFake:
		return "SlowFake"
	case Mirror:
		return "Mirror"
	default:
		return "Unknown"
	}
}

// Verdict is the metadata stored in the verdict cache. It never carries
// response bytes, so a cache read can't be used to predict what Layer 0
// will send back.
type Verdict int

const (
	Boring Verdict = iota
	NeedsL1
	KnownNoise
)

func (v Verdict) String() string {
	switch v {
	case Boring:
		return "Boring"
	case NeedsL1:
		return "NeedsL1"
	case KnownNoise:
		return "KnownNoise"
	default:
		return "Unknown"
	}
}

// Layer0Output is produced once per payload and is immutable after
// publication — callers must treat the value as a snapshot.
type Layer0Output struct {
	ProtoGuess      protocol.Protocol
	ResponseProfile ResponseProfile
	Tags            TagSet
	Escalate        bool
	SuspicionScore  SuspicionScore
}

// ProfileFlags configures how aggressively Layer 0 acts on its own
// tags. The two canonical presets are Home and Enterprise; see
// HomeProfile and EnterpriseProfile.
type ProfileFlags struct {
	// DropEnabled permits a caller to treat a denied/escalated result
	// as "drop the connection" instead of always answering with
	// something. Home never sets this.
	DropEnabled bool

	// BloomDrop permits a bloom hit (C5) to short-circuit evaluation
	// and force escalate=false without running the router. Tag-only
	// behavior (the default, "tag never drop" contract) applies
	// whenever this is false.
	BloomDrop bool

	// BenignSampling is carried in the profile and set by the
	// Enterprise preset; no stage of Orchestrator.Process reads it, so
	// it does not change how payloads are analyzed.
	BenignSampling bool

	// LatencyAdaptiveSecurity lets the circuit breaker's degradation
	// ladder skip optional stages (C2, C5) under sustained load. Home
	// never sheds work this way.
	LatencyAdaptiveSecurity bool
}

// HomeProfile is the default, "curious liar" preset: never drops,
// never sheds, never short-circuits on a bloom hit.
func HomeProfile() ProfileFlags {
	return ProfileFlags{}
}

// EnterpriseProfile is the opposite preset: all four behaviors enabled.
func EnterpriseProfile() ProfileFlags {
	return ProfileFlags{
		DropEnabled:             true,
		BloomDrop:               true,
		BenignSampling:          true,
		LatencyAdaptiveSecurity: true,
	}
}

// Summary is a non-persistent, in-memory rollup of processed outputs,
// kept purely for local diagnostics by a caller that wants rolling
// per-protocol counts without standing up a statistics endpoint (that
// surface is an explicit external collaborator, not part of Layer 0).
type Summary struct {
	Total         uint64
	ByProto       map[protocol.Protocol]uint64
	ByLane        map[ResponseProfile]uint64
	Escalations   uint64
	TaggedNoise   uint64
	TaggedExploit uint64
}

// NewSummary returns a zeroed Summary ready for Fold.
func NewSummary() *Summary {
	return &Summary{
		ByProto: make(map[protocol.Protocol]uint64),
		ByLane:  make(map[ResponseProfile]uint64),
	}
}

// Fold folds one Layer0Output into the rolling counts. Not safe for
// concurrent use — callers that fold from multiple goroutines must
// serialize their own calls.
func (s *Summary) Fold(out Layer0Output) {
	s.Total++
	s.ByProto[out.ProtoGuess]++
	s.ByLane[out.ResponseProfile]++
	if out.Escalate {
		s.Escalations++
	}
	if out.Tags.Has(TagProbableNoise) {
		s.TaggedNoise++
	}
	if out.Tags.Has(TagExploitHint) {
		s.TaggedExploit++
	}
}
