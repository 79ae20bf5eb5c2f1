package sniper

import (
	"fmt"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// PairCost is the price of one share of each side.
func PairCost(a, b float64) decimal.Decimal {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b))
}

// ShouldHedge reports whether buying the opposite side at oppositePrice
// completes the pair within ceiling.
func ShouldHedge(leg1Price, oppositePrice, ceiling float64) bool {
	return PairCost(leg1Price, oppositePrice).LessThanOrEqual(decimal.NewFromFloat(ceiling))
}

// LockedProfit is the guaranteed payout minus cost of a completed pair:
// (1 - (a+b)) * shares.
func LockedProfit(a, b float64, shares int64) decimal.Decimal {
	return one.Sub(PairCost(a, b)).Mul(decimal.NewFromInt(shares))
}

// SizeShares converts a USD stake into a whole share count at price. It
// rejects counts below minShares instead of rounding up.
func SizeShares(stake, price float64, minShares int64) (int64, error) {
	p := decimal.NewFromFloat(price)
	if !p.IsPositive() || p.GreaterThanOrEqual(one) {
		return 0, fmt.Errorf("sniper: size at %v: %w", price, domain.ErrInvalidPrice)
	}
	shares := decimal.NewFromFloat(stake).Div(p).Floor().IntPart()
	if shares < minShares {
		return shares, fmt.Errorf("sniper: %d shares at %v for stake %v (min %d): %w",
			shares, price, stake, minShares, domain.ErrBelowMinShares)
	}
	return shares, nil
}
