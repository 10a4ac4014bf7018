package orchestration

import (
	"slices"
	"time"

	"github.com/koscakluka/ema-chat/core/pacing"
)

// PacingTier lowers the emit frequency once the visible text of a round
// reaches Characters grapheme clusters.
type PacingTier struct {
	Characters int
	Frequency  int
}

type PacingConfig struct {
	Duration  time.Duration
	Frequency int
	Tiers     []PacingTier
}

func DefaultPacingConfig() PacingConfig {
	return PacingConfig{
		Duration:  pacing.DefaultDuration,
		Frequency: pacing.DefaultFrequency,
		Tiers: []PacingTier{
			{Characters: 1000, Frequency: 6},
			{Characters: 2000, Frequency: 4},
			{Characters: 5000, Frequency: 2},
		},
	}
}

func (c PacingConfig) normalized() PacingConfig {
	if c.Duration <= 0 {
		c.Duration = pacing.DefaultDuration
	}
	if c.Frequency <= 0 {
		c.Frequency = pacing.DefaultFrequency
	}
	c.Tiers = slices.Clone(c.Tiers)
	slices.SortFunc(c.Tiers, func(a, b PacingTier) int { return a.Characters - b.Characters })
	return c
}

// frequencyFor returns the frequency for a round that has shown characters
// grapheme clusters so far, never exceeding current.
func (c PacingConfig) frequencyFor(characters, current int) int {
	frequency := current
	for _, tier := range c.Tiers {
		if characters < tier.Characters {
			break
		}
		if tier.Frequency > 0 && tier.Frequency < frequency {
			frequency = tier.Frequency
		}
	}
	return frequency
}
