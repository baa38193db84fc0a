package domain

import (
	"fmt"
	"sort"
)

// DurationTier maps a contract duration to its payout rate and allowed amount
// range. Tiers are immutable and defined at startup.
type DurationTier struct {
	DurationSeconds   int
	PayoutRatePercent float64
	MinAmount         float64
	MaxAmount         float64
}

// Validate checks the tier invariants.
func (t DurationTier) Validate() error {
	if t.DurationSeconds <= 0 {
		return fmt.Errorf("tier: duration must be positive, got %d", t.DurationSeconds)
	}
	if t.PayoutRatePercent <= 0 {
		return fmt.Errorf("tier %ds: payout rate must be positive, got %g", t.DurationSeconds, t.PayoutRatePercent)
	}
	if t.MinAmount >= t.MaxAmount {
		return fmt.Errorf("tier %ds: min amount %g must be below max amount %g", t.DurationSeconds, t.MinAmount, t.MaxAmount)
	}
	return nil
}

// TierTable is the static lookup of duration tiers, keyed by duration.
type TierTable struct {
	tiers []DurationTier
}

// NewTierTable validates the given tiers and builds a table sorted by
// duration. Duplicate durations are collapsed; the first row wins.
func NewTierTable(tiers []DurationTier) (*TierTable, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tier table: no tiers configured")
	}

	seen := make(map[int]bool, len(tiers))
	kept := make([]DurationTier, 0, len(tiers))
	for _, t := range tiers {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("tier table: %w", err)
		}
		if seen[t.DurationSeconds] {
			continue
		}
		seen[t.DurationSeconds] = true
		kept = append(kept, t)
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].DurationSeconds < kept[j].DurationSeconds
	})

	return &TierTable{tiers: kept}, nil
}

// ByDuration returns the tier for the given duration, if one exists.
func (tt *TierTable) ByDuration(seconds int) (DurationTier, bool) {
	for _, t := range tt.tiers {
		if t.DurationSeconds == seconds {
			return t, true
		}
	}
	return DurationTier{}, false
}

// All returns a copy of the tier rows in ascending duration order.
func (tt *TierTable) All() []DurationTier {
	out := make([]DurationTier, len(tt.tiers))
	copy(out, tt.tiers)
	return out
}

// DefaultTiers is the production tier sheet.
func DefaultTiers() []DurationTier {
	return []DurationTier{
		{DurationSeconds: 30, PayoutRatePercent: 12, MinAmount: 100, MaxAmount: 100_000},
		{DurationSeconds: 60, PayoutRatePercent: 18, MinAmount: 10_000, MaxAmount: 1_000_000},
		{DurationSeconds: 90, PayoutRatePercent: 25, MinAmount: 60_000, MaxAmount: 1_000_000},
		{DurationSeconds: 180, PayoutRatePercent: 32, MinAmount: 150_000, MaxAmount: 1_000_000},
		{DurationSeconds: 300, PayoutRatePercent: 45, MinAmount: 300_000, MaxAmount: 1_000_000},
	}
}
