package layer0

import (
	"github.com/ocx/mirage-layer0/internal/circuitbreaker"
	"github.com/ocx/mirage-layer0/internal/config"
)

// ConfigFromSettings translates a loaded config.Config into the
// Orchestrator's construction-time Config, resolving the profile
// preset to a concrete ProfileFlags value.
func ConfigFromSettings(c *config.Config) Config {
	return Config{
		Profile:               ProfileFromSettings(c),
		VerdictCacheSize:      c.Cache.MaxSize,
		VerdictCacheTTL:       c.CacheTTL(),
		RateWindow:            c.RateStats.Window,
		BloomExpectedElements: c.Bloom.ExpectedElements,
		BloomFalsePositive:    c.Bloom.FalsePositiveRate,
		Breaker: circuitbreaker.Config{
			FailureThreshold: uint32(c.Breaker.FailureThreshold),
			ResetTimeout:     c.BreakerResetTimeout(),
			LatencyThreshold: c.BreakerLatencyThreshold(),
		},
	}
}

// ProfileFromSettings resolves the configured preset ("home",
// "enterprise", or anything else for the custom block) to a
// ProfileFlags value.
func ProfileFromSettings(c *config.Config) ProfileFlags {
	switch c.Profile.Preset {
	case "enterprise":
		return EnterpriseProfile()
	case "home":
		return HomeProfile()
	default:
		return ProfileFlags{
			DropEnabled:             c.Profile.Custom.DropEnabled,
			BloomDrop:               c.Profile.Custom.BloomDrop,
			BenignSampling:          c.Profile.Custom.BenignSampling,
			LatencyAdaptiveSecurity: c.Profile.Custom.LatencyAdaptiveSecurity,
		}
	}
}
