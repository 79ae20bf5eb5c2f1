package sniper

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

// DefaultConfig returns the engine defaults used when no [sniper] section
// is configured.
func DefaultConfig() domain.SniperConfig {
	return domain.SniperConfig{
		StakePerLeg:   5,
		CostCeiling:   0.95,
		DropThreshold: 0.15,
		EntryWindow:   2 * time.Minute,
		DumpHorizon:   3 * time.Second,
		MinShares:     5,
		Timeframe:     15 * time.Minute,
		TickInterval:  time.Second,
		OrderTimeout:  10 * time.Second,
	}
}

// ValidateConfig rejects parameters the engine cannot trade with.
func ValidateConfig(c domain.SniperConfig) error {
	switch {
	case c.StakePerLeg <= 0:
		return fmt.Errorf("sniper: stake_per_leg must be positive, got %v", c.StakePerLeg)
	case c.CostCeiling <= 0 || c.CostCeiling > 1:
		return fmt.Errorf("sniper: cost_ceiling must be in (0, 1], got %v", c.CostCeiling)
	case c.DropThreshold <= 0 || c.DropThreshold >= 1:
		return fmt.Errorf("sniper: drop_threshold must be in (0, 1), got %v", c.DropThreshold)
	case c.EntryWindow <= 0:
		return fmt.Errorf("sniper: entry_window must be positive, got %s", c.EntryWindow)
	case c.DumpHorizon <= 0:
		return fmt.Errorf("sniper: dump_horizon must be positive, got %s", c.DumpHorizon)
	case c.MinShares < 1:
		return fmt.Errorf("sniper: min_shares must be at least 1, got %d", c.MinShares)
	case c.Timeframe <= 0:
		return fmt.Errorf("sniper: timeframe must be positive, got %s", c.Timeframe)
	case c.TickInterval <= 0:
		return fmt.Errorf("sniper: tick_interval must be positive, got %s", c.TickInterval)
	case c.OrderTimeout <= 0:
		return fmt.Errorf("sniper: order_timeout must be positive, got %s", c.OrderTimeout)
	}
	return nil
}

func validateRound(r domain.Round) error {
	switch {
	case r.AssetA == "" || r.AssetB == "":
		return fmt.Errorf("sniper: round needs two instruments: %w", domain.ErrInvalidRound)
	case r.AssetA == r.AssetB:
		return fmt.Errorf("sniper: round instruments are identical: %w", domain.ErrInvalidRound)
	case !r.End.After(r.Start):
		return fmt.Errorf("sniper: round ends at %s before it starts at %s: %w",
			r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339), domain.ErrInvalidRound)
	}
	return nil
}
