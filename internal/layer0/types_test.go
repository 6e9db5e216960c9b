package layer0

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ocx/mirage-layer0/internal/protocol"
)

func TestTagSetHasAndHasAny(t *testing.T) {
	tags := TagProbableNoise | TagBursty

	assert.True(t, tags.Has(TagProbableNoise))
	assert.False(t, tags.Has(TagProbableNoise|TagExploitHint))
	assert.True(t, tags.HasAny(TagExploitHint|TagBursty))
	assert.False(t, tags.HasAny(TagExploitHint|TagOddCadence))
}

func TestTagSetStringRendersSetBitsOnly(t *testing.T) {
	assert.Equal(t, "NONE", TagSet(0).String())
	assert.Equal(t, "PROBABLE_NOISE", TagProbableNoise.String())
	assert.Equal(t, "PROBABLE_NOISE|BURSTY", (TagProbableNoise | TagBursty).String())
}

func TestSuspicionScoreAddSaturatesAt255(t *testing.T) {
	var s SuspicionScore = 250
	s = s.Add(40)
	assert.Equal(t, SuspicionScore(255), s)
}

func TestSuspicionScoreAddNeverGoesNegative(t *testing.T) {
	var s SuspicionScore = 0
	s = s.Add(-10)
	assert.Equal(t, SuspicionScore(0), s)
}

func TestHomeAndEnterpriseProfilesAreOpposites(t *testing.T) {
	home := HomeProfile()
	ent := EnterpriseProfile()

	assert.Equal(t, ProfileFlags{}, home)
	assert.True(t, ent.DropEnabled)
	assert.True(t, ent.BloomDrop)
	assert.True(t, ent.BenignSampling)
	assert.True(t, ent.LatencyAdaptiveSecurity)
}

func TestSummaryFoldAccumulatesAcrossOutputs(t *testing.T) {
	s := NewSummary()

	s.Fold(Layer0Output{ProtoGuess: protocol.SSH, ResponseProfile: FastFake, Tags: TagProbableNoise})
	s.Fold(Layer0Output{ProtoGuess: protocol.Unknown, ResponseProfile: Mirror, Tags: TagExploitHint, Escalate: true})

	assert.Equal(t, uint64(2), s.Total)
	assert.Equal(t, uint64(1), s.ByProto[protocol.SSH])
	assert.Equal(t, uint64(1), s.ByLane[Mirror])
	assert.Equal(t, uint64(1), s.Escalations)
	assert.Equal(t, uint64(1), s.TaggedNoise)
	assert.Equal(t, uint64(1), s.TaggedExploit)
}
