package tick

import (
	"testing"
	"time"
)

type manualSource struct {
	now time.Time
}

func (m *manualSource) Now() time.Time { return m.now }

func (m *manualSource) advance(d time.Duration) { m.now = m.now.Add(d) }

func newManualClock(maxCatchUp int) (*Clock, *manualSource) {
	src := &manualSource{now: time.Unix(1000, 0)}
	c := NewClock(ClockConfig{Interval: 10 * time.Millisecond, MaxCatchUp: maxCatchUp, Start: 1}, src)
	return c, src
}

func TestClockFirstTickDueImmediately(t *testing.T) {
	c, _ := newManualClock(5)
	due := c.Due()
	if due.First != 1 || due.Count != 1 {
		t.Fatalf("first due = %+v, want First=1 Count=1", due)
	}
	if again := c.Due(); again.Count != 0 {
		t.Fatalf("second due without time passing = %+v, want empty", again)
	}
}

func TestClockAdvancesOnePerInterval(t *testing.T) {
	c, src := newManualClock(5)
	c.Due()

	var got []Tick
	for i := 0; i < 4; i++ {
		src.advance(10 * time.Millisecond)
		got = append(got, c.Due().Ticks()...)
	}
	want := []Tick{2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("ticks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ticks = %v, want %v", got, want)
		}
	}
	if c.Current() != 5 {
		t.Fatalf("Current = %d, want 5", c.Current())
	}
}

func TestClockCatchUpIsOrderedAndGapless(t *testing.T) {
	c, src := newManualClock(10)
	c.Due()

	src.advance(35 * time.Millisecond)
	due := c.Due()
	if due.First != 2 || due.Count != 3 || due.Overrun != 0 {
		t.Fatalf("catch-up due = %+v, want First=2 Count=3", due)
	}
	src.advance(10 * time.Millisecond)
	next := c.Due()
	if next.First != due.Last()+1 {
		t.Fatalf("next range starts at %d, want %d", next.First, due.Last()+1)
	}
}

func TestClockOverrunDiscardsOldestAndStaysGapless(t *testing.T) {
	c, src := newManualClock(3)
	c.Due()

	src.advance(100 * time.Millisecond) // ten ticks of debt
	due := c.Due()
	if due.Count != 3 {
		t.Fatalf("Count = %d, want clamp to 3", due.Count)
	}
	if due.Overrun != 7 {
		t.Fatalf("Overrun = %d, want 7", due.Overrun)
	}
	if due.First != 2 {
		t.Fatalf("First = %d, want 2 (numbering continues after last issued tick)", due.First)
	}
	if again := c.Due(); again.Count != 0 {
		t.Fatalf("debt should be cleared after clamp, got %+v", again)
	}

	src.advance(10 * time.Millisecond)
	if next := c.Due(); next.First != 5 || next.Count != 1 {
		t.Fatalf("after clamp due = %+v, want First=5 Count=1", next)
	}
}

func TestClockSyncMovesForwardOnly(t *testing.T) {
	c, src := newManualClock(5)
	c.Due()
	src.advance(20 * time.Millisecond)
	c.Due() // issues 2,3

	c.Sync(100, 3)
	if c.Current() != 103 {
		t.Fatalf("Current after sync = %d, want 103", c.Current())
	}
	due := c.Due()
	if due.First != 103 || due.Count != 1 {
		t.Fatalf("due after sync = %+v, want First=103 Count=1", due)
	}

	c.Sync(1, 0)
	src.advance(10 * time.Millisecond)
	if due := c.Due(); due.Count != 0 {
		t.Fatalf("sync backwards must not reissue ticks, got %+v", due)
	}
}

func TestClockTimeGoingBackwardsIssuesNothing(t *testing.T) {
	c, src := newManualClock(5)
	c.Due()
	src.advance(-time.Second)
	if due := c.Due(); due.Count != 0 {
		t.Fatalf("due = %+v, want empty", due)
	}
}

func TestMustFollowPanicsOnRegression(t *testing.T) {
	MustFollow(4, 5)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on tick regression")
		}
	}()
	MustFollow(5, 5)
}

func TestFractionTracksSubTickProgress(t *testing.T) {
	c, src := newManualClock(5)
	src.advance(25 * time.Millisecond)
	if got := c.Fraction(); got < 3.49 || got > 3.51 {
		t.Fatalf("Fraction = %f, want 3.5", got)
	}
	if got := c.TicksIn(50 * time.Millisecond); got != 5 {
		t.Fatalf("TicksIn = %f, want 5", got)
	}
}
