package clock_test

import (
	"testing"
	"time"

	"github.com/artpar/mongopenter/adapters/clock"
)

func TestReal_Now(t *testing.T) {
	c := clock.Real{}

	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", got, before, after)
	}
}

func TestFake_Stable(t *testing.T) {
	fixed := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	c := clock.NewFake(fixed)

	for i := 0; i < 3; i++ {
		if got := c.Now(); !got.Equal(fixed) {
			t.Fatalf("Now() = %v, want %v", got, fixed)
		}
	}
}

func TestFake_Advance(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(fixed)

	c.Advance(90 * time.Second)

	if got := c.Now().Sub(fixed); got != 90*time.Second {
		t.Errorf("elapsed = %v, want 90s", got)
	}
}

func TestStepping_Now(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewStepping(start, time.Second)

	first := c.Now()
	second := c.Now()

	if !first.Equal(start) {
		t.Errorf("first = %v, want %v", first, start)
	}
	if d := second.Sub(first); d != time.Second {
		t.Errorf("step = %v, want 1s", d)
	}
}
