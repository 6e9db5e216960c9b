package layer0

import "github.com/ocx/mirage-layer0/internal/protocol"

// Route is the 3-lane router (C7): a pure function from suspicion
// score and tags to a response lane. It holds no state and makes no
// I/O calls. proto is accepted for symmetry with the design-level
// (proto, score, tags) signature; the current rules don't key off it
// directly, since PROTO_UNKNOWN already reaches the router as a tag.
func Route(proto protocol.Protocol, score SuspicionScore, tags TagSet) ResponseProfile {
	_ = proto
	if score >= 50 || tags.HasAny(TagExploitHint) {
		return Mirror
	}
	if score >= 20 || tags.HasAny(TagProtoUnknown|TagOddCadence) {
		return SlowFake
	}
	return FastFake
}
