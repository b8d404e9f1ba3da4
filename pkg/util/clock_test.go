package util

import (
	"testing"
	"time"
)

func TestStepClock(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := NewStepClock(start, time.Second)

	if got := c.Now(); !got.Equal(start.Add(time.Second)) {
		t.Errorf("first reading = %v, want %v", got, start.Add(time.Second))
	}
	if got := c.Now(); !got.Equal(start.Add(2 * time.Second)) {
		t.Errorf("second reading = %v, want %v", got, start.Add(2*time.Second))
	}
}
