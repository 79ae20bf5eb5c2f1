package round

import (
	"testing"
	"time"
)

func TestFloorAlignsToSlot(t *testing.T) {
	tf := 15 * time.Minute
	at := time.Date(2026, 3, 4, 10, 37, 12, 0, time.UTC)
	got := Floor(at, tf)
	want := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("floor mismatch got=%s want=%s", got, want)
	}
}

func TestNextIsStrictlyAfter(t *testing.T) {
	tf := 15 * time.Minute
	boundary := time.Date(2026, 3, 4, 10, 45, 0, 0, time.UTC)
	if got := Next(boundary, tf); !got.Equal(boundary.Add(tf)) {
		t.Fatalf("next from a boundary got=%s want=%s", got, boundary.Add(tf))
	}
	if got := Next(boundary.Add(-time.Nanosecond), tf); !got.Equal(boundary) {
		t.Fatalf("next just before boundary got=%s want=%s", got, boundary)
	}
}

func TestCurrentNonUTCInput(t *testing.T) {
	loc := time.FixedZone("UTC+5:30", 5*3600+1800)
	at := time.Date(2026, 3, 4, 16, 10, 0, 0, loc) // 10:40 UTC
	start, end := Current(at, time.Hour)
	if !start.Equal(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %s", start)
	}
	if end.Sub(start) != time.Hour {
		t.Fatalf("unexpected length %s", end.Sub(start))
	}
}

func TestParseTimeframe(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"15m", 15 * time.Minute, true},
		{" 1H ", time.Hour, true},
		{"240min", 4 * time.Hour, true},
		{"5m", 0, false},
	}
	for _, c := range cases {
		got, err := ParseTimeframe(c.in)
		if (err == nil) != c.ok {
			t.Fatalf("%q: err=%v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("%q: got=%s want=%s", c.in, got, c.want)
		}
	}
}

func TestSlug(t *testing.T) {
	start := time.Unix(1700000100, 0)
	if got := Slug("BTC", 15*time.Minute, start); got != "btc-updown-15m-1700000100" {
		t.Fatalf("unexpected slug %q", got)
	}
	if got := Slug("eth", 4*time.Hour, start); got != "eth-updown-4h-1700000100" {
		t.Fatalf("unexpected slug %q", got)
	}
}
