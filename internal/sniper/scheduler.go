package sniper

import (
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/round"
)

// RoundScheduler holds at most one pending re-arm timer. It has no lock of
// its own; the controller calls it with its mutex held.
type RoundScheduler struct {
	clock Clock
	timer Timer
	at    time.Time
	gen   uint64
}

// NewRoundScheduler creates a scheduler on clock.
func NewRoundScheduler(clock Clock) *RoundScheduler {
	return &RoundScheduler{clock: clock}
}

// Arm replaces any pending timer with one that runs fire(gen) at at. The
// callback must check Live(gen) before acting, since a Cancel may race
// with the timer firing.
func (s *RoundScheduler) Arm(at time.Time, fire func(gen uint64)) {
	s.Cancel()
	gen := s.gen
	s.at = at
	d := at.Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}
	s.timer = s.clock.AfterFunc(d, func() { fire(gen) })
}

// Cancel drops the pending timer, if any, and invalidates its generation.
func (s *RoundScheduler) Cancel() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.at = time.Time{}
	s.gen++
}

// Live reports whether gen is still the armed, uncancelled generation.
func (s *RoundScheduler) Live(gen uint64) bool {
	return gen == s.gen && s.timer != nil
}

// Clear forgets a timer that has fired and been consumed.
func (s *RoundScheduler) Clear() {
	s.timer = nil
	s.at = time.Time{}
}

// Pending returns the armed fire time. A fired timer whose round is still
// being resolved counts as pending until Clear.
func (s *RoundScheduler) Pending() (time.Time, bool) {
	if s.timer == nil {
		return time.Time{}, false
	}
	return s.at, true
}

// NextStart picks the start of the round after one that ended at prevEnd.
// A boundary that already passed is replaced by the slot now falls in, so
// a late re-arm joins the round in progress instead of skipping it.
func NextStart(prevEnd, now time.Time, tf time.Duration) time.Time {
	if !prevEnd.Before(now) {
		return prevEnd
	}
	cur := round.Floor(now, tf)
	if cur.Before(prevEnd) {
		return round.Next(now, tf)
	}
	return cur
}
