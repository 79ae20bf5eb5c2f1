package sniper

import (
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

// buildSnapshot derives a status view from s without mutating it. s may be
// nil when the controller is idle.
func buildSnapshot(s *session, next domain.SniperConfig, stranded []domain.Leg, nextRound time.Time, hasNext bool, now time.Time) domain.Snapshot {
	snap := domain.Snapshot{
		State:  domain.StateIdle,
		Config: next,
		At:     now,
	}
	if len(stranded) > 0 {
		snap.Stranded = append([]domain.Leg(nil), stranded...)
	}
	if hasNext {
		t := nextRound
		snap.NextRoundAt = &t
	}
	if s == nil {
		return snap
	}

	snap.SessionID = s.id
	snap.State = s.state
	snap.Config = s.cfg
	snap.Slug = s.round.Slug
	snap.AssetA = s.round.AssetA
	snap.AssetB = s.round.AssetB
	snap.RoundStart = s.round.Start
	snap.RoundEnd = s.round.End
	snap.PriceA = s.lastA
	snap.PriceB = s.lastB
	if s.lastA > 0 && s.lastB > 0 {
		snap.PriceSum, _ = PairCost(s.lastA, s.lastB).Float64()
	}

	if s.leg1 != nil {
		l := *s.leg1
		snap.Leg1 = &l
	}
	if s.leg2 != nil {
		l := *s.leg2
		snap.Leg2 = &l
	}

	switch {
	case s.leg1 != nil && s.leg2 != nil:
		snap.Profit, _ = LockedProfit(s.leg1.Price, s.leg2.Price, s.leg1.Shares).Float64()
		snap.ProfitRealized = true
	case s.leg1 != nil:
		if _, opp := s.opposite(s.leg1.Side); opp > 0 {
			snap.Profit, _ = LockedProfit(s.leg1.Price, opp, s.leg1.Shares).Float64()
		}
	}

	if now.Before(s.round.Start) {
		snap.UntilStart = s.round.Start.Sub(now)
	}
	if s.state == domain.StateWatching {
		from := now
		if from.Before(s.round.Start) {
			from = s.round.Start
		}
		if rem := s.entryEnd().Sub(from); rem > 0 {
			snap.EntryRemaining = rem
		}
	}
	return snap
}
