package sniper

import (
	"testing"
	"time"
)

func TestNextStart(t *testing.T) {
	tf := 15 * time.Minute
	end := t0.Add(tf)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before previous end", t0.Add(5 * time.Minute), end},
		{"exactly at end", end, end},
		{"late inside next slot", end.Add(2 * time.Minute), end},
		{"two slots late", end.Add(tf + time.Minute), end.Add(tf)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextStart(end, tc.now, tf); !got.Equal(tc.want) {
				t.Fatalf("got=%s want=%s", got, tc.want)
			}
		})
	}
}

func TestSchedulerCancelInvalidatesGeneration(t *testing.T) {
	clock := newFakeClock(t0)
	s := NewRoundScheduler(clock)
	var fired []uint64
	s.Arm(t0.Add(time.Minute), func(gen uint64) {
		if s.Live(gen) {
			fired = append(fired, gen)
		}
	})
	if at, ok := s.Pending(); !ok || !at.Equal(t0.Add(time.Minute)) {
		t.Fatalf("pending got=%s,%v", at, ok)
	}
	s.Cancel()
	clock.Advance(2 * time.Minute)
	if len(fired) != 0 {
		t.Fatalf("cancelled timer fired")
	}

	s.Arm(t0.Add(3*time.Minute), func(gen uint64) {
		if s.Live(gen) {
			fired = append(fired, gen)
			s.Clear()
		}
	})
	clock.Advance(30 * time.Second)
	if len(fired) != 0 {
		t.Fatalf("timer fired early")
	}
	clock.Advance(30 * time.Second)
	if len(fired) != 1 {
		t.Fatalf("timer fired %d times, want 1", len(fired))
	}
	if _, ok := s.Pending(); ok {
		t.Fatalf("cleared scheduler still pending")
	}
}
