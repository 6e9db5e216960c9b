package layer0

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/mirage-layer0/internal/circuitbreaker"
	"github.com/ocx/mirage-layer0/internal/protocol"
	"github.com/ocx/mirage-layer0/internal/verdictcache"
)

func newTestOrchestrator(profile ProfileFlags) *Orchestrator {
	cfg := DefaultConfig()
	cfg.Profile = profile
	cfg.VerdictCacheSize = 100
	return NewOrchestrator(cfg)
}

func TestPlainHTTPGETIsCleanFastFake(t *testing.T) {
	o := newTestOrchestrator(HomeProfile())
	out := o.Process("10.0.0.1", []byte("GET /index.html HTTP/1.1\r\n\r\n"))

	assert.Equal(t, protocol.HTTP, out.ProtoGuess)
	assert.Equal(t, TagSet(0), out.Tags)
	assert.Less(t, int(out.SuspicionScore), 20)
	assert.Equal(t, FastFake, out.ResponseProfile)
	assert.False(t, out.Escalate)
}

func TestUnknownProtocolTaggedAndRoutedSlowFake(t *testing.T) {
	o := newTestOrchestrator(HomeProfile())
	out := o.Process("10.0.0.1", []byte("????"))

	assert.Equal(t, protocol.Unknown, out.ProtoGuess)
	assert.True(t, out.Tags.Has(TagProtoUnknown))
	assert.Equal(t, SlowFake, out.ResponseProfile)
}

func TestExploitMarkerEscalatesToMirror(t *testing.T) {
	o := newTestOrchestrator(HomeProfile())
	out := o.Process("10.0.0.2", []byte("POST /x metasploit payload/"))

	assert.Equal(t, protocol.HTTP, out.ProtoGuess)
	assert.True(t, out.Tags.Has(TagExploitHint))
	assert.Equal(t, Mirror, out.ResponseProfile)
	assert.True(t, out.Escalate)
}

func TestScannerNameTaggedProbableNoise(t *testing.T) {
	o := newTestOrchestrator(HomeProfile())
	out := o.Process("10.0.0.3", []byte("nmap probe"))

	assert.True(t, out.Tags.Has(TagProbableNoise))
	// "nmap probe" has no known prefix, so PROTO_UNKNOWN sends it to
	// the slow lane.
	assert.Equal(t, SlowFake, out.ResponseProfile)
}

func TestPlainSSHBannerIsFastFakeBoring(t *testing.T) {
	o := newTestOrchestrator(HomeProfile())
	out := o.Process("10.0.0.4", []byte("SSH-2.0-OpenSSH_9.1"))

	assert.Equal(t, protocol.SSH, out.ProtoGuess)
	assert.Equal(t, FastFake, out.ResponseProfile)
	assert.False(t, out.Escalate)
}

func TestBurstOfTrafficFromOneIPAccumulatesBurstyTag(t *testing.T) {
	o := newTestOrchestrator(HomeProfile())

	var out Layer0Output
	for i := 0; i < 30; i++ {
		out = o.Process("10.0.0.5", []byte("SSH-2.0-OpenSSH_9.1"))
	}

	assert.True(t, out.Tags.Has(TagBursty))
	assert.True(t, out.Tags.Has(TagOddCadence))
	assert.NotEqual(t, FastFake, out.ResponseProfile, "an insane source rates at least the slow lane")
}

func TestVerdictStoredMatchesResponseProfileMapping(t *testing.T) {
	o := newTestOrchestrator(HomeProfile())
	payload := []byte("drop metasploit payload/x86")
	ip := "10.0.0.6"

	out := o.Process(ip, payload)
	require.Equal(t, Mirror, out.ResponseProfile)

	key := verdictcache.Key(ip, payload)
	v, ok := o.cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, NeedsL1, v)
}

func TestEnterpriseBloomDropShortCircuitsToFastFakeNoEscalate(t *testing.T) {
	o := newTestOrchestrator(EnterpriseProfile())
	ip := "10.0.0.7"
	payload := []byte("nmap scan marker one")

	first := o.Process(ip, payload)
	assert.False(t, first.Escalate)

	second := o.Process(ip, payload)
	assert.Equal(t, FastFake, second.ResponseProfile)
	assert.False(t, second.Escalate)
}

func TestRepeatedProbeTaggedOnVerdictCacheHit(t *testing.T) {
	o := newTestOrchestrator(HomeProfile())
	ip := "10.0.0.10"
	payload := []byte("GET /health HTTP/1.1\r\n\r\n")

	first := o.Process(ip, payload)
	assert.False(t, first.Tags.Has(TagRepeatedProbe))

	second := o.Process(ip, payload)
	assert.True(t, second.Tags.Has(TagRepeatedProbe))
}

func TestBenignRepeatIsNotRememberedAsNoise(t *testing.T) {
	o := newTestOrchestrator(HomeProfile())
	ip := "10.0.0.11"
	payload := []byte("GET / HTTP/1.1\r\n\r\n")

	o.Process(ip, payload)
	second := o.Process(ip, payload)

	assert.False(t, second.Tags.Has(TagProbableNoise),
		"a boring payload must not enter the noise bloom just for repeating")
}

func TestPanicInPipelineConvertsToTaggedFastFake(t *testing.T) {
	o := newTestOrchestrator(HomeProfile())
	o.clock = func() time.Time { panic("boom") }

	out := o.Process("10.0.0.12", []byte("GET / HTTP/1.1\r\n\r\n"))

	assert.Equal(t, FastFake, out.ResponseProfile)
	assert.True(t, out.Tags.Has(TagProbableNoise))
	assert.False(t, out.Escalate)
	assert.Equal(t, "Closed", o.BreakerStateName(), "one incident alone must not trip the breaker")
}

func TestBreakerDenyReturnsMinimalFastFakeOutput(t *testing.T) {
	o := newTestOrchestrator(HomeProfile())

	threshold := int(circuitbreaker.DefaultConfig().FailureThreshold)
	for i := 0; i < threshold; i++ {
		o.breaker.RecordResult(time.Second) // force it open with huge latency
	}

	out := o.Process("10.0.0.8", []byte("SSH-2.0-OpenSSH_9.1"))
	assert.Equal(t, FastFake, out.ResponseProfile)
	assert.Equal(t, TagSet(0), out.Tags)
	assert.False(t, out.Escalate)
}
