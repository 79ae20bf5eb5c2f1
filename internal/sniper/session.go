package sniper

import (
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

// session is one round's aggregate. Only the controller touches it, and
// only while holding its lock.
type session struct {
	id    string
	round domain.Round
	cfg   domain.SniperConfig
	state domain.State
	gate  ExecutionGate

	windowA PriceWindow
	windowB PriceWindow
	lastA   float64
	lastB   float64

	entryOpened bool // windows were reset when the entry window began
	stranded    bool // leg1 outlived the round
	notified    bool // OnStopped was sent

	leg1 *domain.Leg
	leg2 *domain.Leg

	endedAt time.Time
}

func newSession(id string, r domain.Round, cfg domain.SniperConfig) *session {
	return &session{
		id:    id,
		round: r,
		cfg:   cfg,
		state: domain.StateWatching,
	}
}

// entryEnd is the last instant a dump may open leg 1.
func (s *session) entryEnd() time.Time {
	return s.round.Start.Add(s.cfg.EntryWindow)
}

// window returns the buffer of the given side, or nil for a foreign id.
func (s *session) window(assetID string) *PriceWindow {
	switch assetID {
	case s.round.AssetA:
		return &s.windowA
	case s.round.AssetB:
		return &s.windowB
	}
	return nil
}

func (s *session) setLast(assetID string, price float64) {
	if assetID == s.round.AssetA {
		s.lastA = price
	} else {
		s.lastB = price
	}
}

// opposite returns the other instrument id and its last observed price.
func (s *session) opposite(assetID string) (string, float64) {
	if assetID == s.round.AssetA {
		return s.round.AssetB, s.lastB
	}
	return s.round.AssetA, s.lastA
}

// checkInvariants validates leg bookkeeping against the current state.
func (s *session) checkInvariants() bool {
	switch s.state {
	case domain.StateLeg1Filled:
		return s.leg1 != nil && s.leg2 == nil
	case domain.StateComplete:
		return s.leg1 != nil && s.leg2 != nil &&
			s.leg1.Side != s.leg2.Side && s.leg1.Shares == s.leg2.Shares
	case domain.StateWatching, domain.StateExpired:
		return s.leg1 == nil && s.leg2 == nil
	}
	return true
}
