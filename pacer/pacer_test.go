package pacer

import (
	"math/rand/v2"
	"testing"
	"time"
)

func TestNewDefaultsRate(t *testing.T) {
	p := New(0)
	if got := p.RefreshRate(); got != 60 {
		t.Errorf("RefreshRate() = %v, want 60", got)
	}
	hz := 60.0
	if got, want := p.FrameTime(), time.Duration(float64(time.Second)/hz); got != want {
		t.Errorf("FrameTime() = %v, want %v", got, want)
	}
}

func TestSwapFirstIsAccepted(t *testing.T) {
	p := New(60)
	raw := 5 * time.Second
	if got := p.Swap(raw); got != raw {
		t.Errorf("Swap(%v) = %v, want unchanged first swap", raw, got)
	}
	if got, want := p.NextSwapTime(), raw+p.FrameTime(); got != want {
		t.Errorf("NextSwapTime() = %v, want %v", got, want)
	}
}

func TestSwapSmoothsJitter(t *testing.T) {
	p := New(100) // 10ms frames
	p.Swap(time.Second)

	// 2ms late: delta = 2ms is inside the window, keep 2.5% of it.
	got := p.Swap(time.Second + 12*time.Millisecond)
	want := time.Second + 10*time.Millisecond + 50*time.Microsecond
	if got != want {
		t.Errorf("Swap(jittered) = %v, want %v", got, want)
	}

	// 1ms early relative to the smoothed time.
	last := got
	got = p.Swap(last + 9*time.Millisecond)
	want = last + 10*time.Millisecond - 25*time.Microsecond
	if got != want {
		t.Errorf("Swap(early) = %v, want %v", got, want)
	}
	if p.MissedRefreshes() != 0 {
		t.Errorf("MissedRefreshes() = %d, want 0", p.MissedRefreshes())
	}
}

func TestSwapAcceptsMiss(t *testing.T) {
	p := New(100)
	p.Swap(time.Second)

	// A whole frame late is a genuine miss and is not smoothed away.
	raw := time.Second + 20*time.Millisecond
	if got := p.Swap(raw); got != raw {
		t.Errorf("Swap(missed) = %v, want %v", got, raw)
	}
	if p.MissedRefreshes() != 1 {
		t.Errorf("MissedRefreshes() = %d, want 1", p.MissedRefreshes())
	}
}

func TestSwapNeverGoesBackwards(t *testing.T) {
	p := New(100)
	p.Swap(time.Second)
	got := p.Swap(time.Second - 5*time.Millisecond)
	if got <= time.Second {
		t.Errorf("Swap(earlier) = %v, want > %v", got, time.Second)
	}
}

func TestPacerMonotonic(t *testing.T) {
	p := New(90)
	rng := rand.New(rand.NewPCG(1, 2))

	raw := time.Second
	prevNext := p.NextSwapTime()
	prevLast := time.Duration(-1)
	for i := range 10000 {
		// Mostly on time, with jitter, occasional misses and clock hiccups.
		step := p.FrameTime() + time.Duration(rng.Int64N(int64(4*time.Millisecond))) - 2*time.Millisecond
		switch rng.IntN(20) {
		case 0:
			step *= 3
		case 1:
			step = -time.Duration(rng.Int64N(int64(8 * time.Millisecond)))
		}
		raw += step

		last := p.Swap(raw)
		if last <= prevLast {
			t.Fatalf("swap %d: last swap %v not after %v", i, last, prevLast)
		}
		next := p.NextSwapTime()
		if next < prevNext {
			t.Fatalf("swap %d: NextSwapTime() = %v, decreased from %v", i, next, prevNext)
		}
		if next < last {
			t.Fatalf("swap %d: NextSwapTime() = %v before last swap %v", i, next, last)
		}
		prevNext, prevLast = next, last
	}
	if p.Swaps() != 10000 {
		t.Errorf("Swaps() = %d, want 10000", p.Swaps())
	}
}

func TestMonotonicClock(t *testing.T) {
	c := NewMonotonicClock()
	a := c.Now()
	time.Sleep(time.Millisecond)
	if b := c.Now(); b <= a {
		t.Errorf("Now() = %v after %v, want later", b, a)
	}
}
