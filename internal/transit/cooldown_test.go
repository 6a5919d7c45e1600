package transit

import (
	"testing"
	"time"
)

// TestCooldownNeverFiredIsEligible: absence from the map means eligible.
func TestCooldownNeverFiredIsEligible(t *testing.T) {
	c := NewCooldown(0.5, 100)
	if !c.Eligible("Vega", time.Now()) {
		t.Error("star that never fired reported ineligible")
	}
}

// TestCooldownWindow verifies ineligibility holds for the whole window and
// ends exactly at its boundary.
func TestCooldownWindow(t *testing.T) {
	c := NewCooldown(0.5, 100) // 50s window
	t0 := time.Date(2026, 8, 22, 4, 0, 0, 0, time.UTC)
	c.MarkFired("Vega", t0)

	if c.Eligible("Vega", t0) {
		t.Error("eligible immediately after firing")
	}
	if c.Eligible("Vega", t0.Add(c.Window()-time.Nanosecond)) {
		t.Error("eligible one nanosecond before the window closes")
	}
	if !c.Eligible("Vega", t0.Add(c.Window())) {
		t.Error("ineligible at the exact window boundary")
	}
	if c.Eligible("Other", t0.Add(time.Second)) == false {
		t.Error("unrelated star affected by the firing")
	}
}

// TestCooldownRefresh: marking again restarts the window.
func TestCooldownRefresh(t *testing.T) {
	c := NewCooldown(0.5, 100)
	t0 := time.Date(2026, 8, 22, 4, 0, 0, 0, time.UTC)
	c.MarkFired("Vega", t0)
	t1 := t0.Add(c.Window())
	c.MarkFired("Vega", t1)

	if c.Eligible("Vega", t1.Add(c.Window()-time.Second)) {
		t.Error("refresh did not restart the window")
	}
	if !c.Eligible("Vega", t1.Add(c.Window())) {
		t.Error("ineligible after refreshed window elapsed")
	}
}

// TestCooldownActiveCount counts only stars still inside their window.
func TestCooldownActiveCount(t *testing.T) {
	c := NewCooldown(0.5, 100)
	t0 := time.Date(2026, 8, 22, 4, 0, 0, 0, time.UTC)
	c.MarkFired("Vega", t0)
	c.MarkFired("Altair", t0.Add(30*time.Second))

	if got := c.ActiveCount(t0.Add(time.Second)); got != 2 {
		t.Errorf("ActiveCount = %d, want 2", got)
	}
	// Vega's window has closed, Altair's has not.
	if got := c.ActiveCount(t0.Add(c.Window())); got != 1 {
		t.Errorf("ActiveCount after first expiry = %d, want 1", got)
	}
	if got := c.ActiveCount(t0.Add(time.Hour)); got != 0 {
		t.Errorf("ActiveCount after both expired = %d, want 0", got)
	}
}

// TestCooldownFractionScales ties the window to the configured day length.
func TestCooldownFractionScales(t *testing.T) {
	c := NewCooldown(0.98, 86164.0905)
	want := time.Duration(0.98 * 86164.0905 * float64(time.Second))
	if c.Window() != want {
		t.Errorf("Window = %v, want %v", c.Window(), want)
	}
	if c.Window() >= 24*time.Hour {
		t.Error("cooldown window must stay below a full day")
	}
}
