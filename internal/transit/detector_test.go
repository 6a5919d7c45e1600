package transit

import (
	"math"
	"testing"
	"time"

	"github.com/Logic-Beach/celestial-musicbox/internal/catalog"
)

func star(name string, ra float64) catalog.Star {
	return catalog.Star{Name: name, RADeg: ra, DecDeg: 10}
}

func freshDetector(windowDeg float64) *Detector {
	return NewDetector(windowDeg, NewCooldown(0.98, 86164.0905))
}

// TestJustCrossedBasic: only a star just past the meridian fires; stars
// ahead of it, far past it, or at the anti-transit point do not.
func TestJustCrossedBasic(t *testing.T) {
	d := freshDetector(0.05)
	stars := []catalog.Star{
		star("JustPast", 100.0),
		star("Ahead", 100.5),
		star("LongPast", 99.0),
		star("AntiTransit", 280.01),
	}
	got := d.JustCrossed(stars, 100.01, time.Now())
	if len(got) != 1 || got[0].Star.Name != "JustPast" {
		t.Fatalf("JustCrossed = %+v, want only JustPast", got)
	}
	if math.Abs(got[0].PastDeg-0.01) > 1e-9 {
		t.Errorf("PastDeg = %v, want 0.01", got[0].PastDeg)
	}
	if math.Abs(got[0].DiffDeg-0.01) > 1e-9 {
		t.Errorf("DiffDeg = %v, want 0.01", got[0].DiffDeg)
	}
}

// TestJustCrossedWindowBoundary: a crossing exactly window degrees ago still
// counts; anything older does not.
func TestJustCrossedWindowBoundary(t *testing.T) {
	d := freshDetector(0.5)
	stars := []catalog.Star{star("Edge", 100.0)}

	if got := d.JustCrossed(stars, 100.5, time.Now()); len(got) != 1 {
		t.Errorf("crossing at exactly the window edge missed: %+v", got)
	}
	if got := d.JustCrossed(stars, 100.6, time.Now()); len(got) != 0 {
		t.Errorf("crossing older than the window fired: %+v", got)
	}
}

// TestJustCrossedAntiTransitExactness: the forward arc must be strictly
// above 180, even when the window is wide enough to reach it.
func TestJustCrossedAntiTransitExactness(t *testing.T) {
	d := freshDetector(180.0)
	stars := []catalog.Star{star("Opposite", 190.0)}
	if got := d.JustCrossed(stars, 10.0, time.Now()); len(got) != 0 {
		t.Errorf("anti-transit point fired: %+v", got)
	}

	// A hair past the anti-transit point is a (very old) crossing and the
	// wide window accepts it.
	if got := d.JustCrossed(stars, 9.99, time.Now()); len(got) != 1 {
		t.Errorf("just past anti-transit with a wide window missed: %+v", got)
	}
}

// TestJustCrossedCooldownGate: a star inside its cooldown is skipped before
// any angle is computed.
func TestJustCrossedCooldownGate(t *testing.T) {
	cd := NewCooldown(0.98, 86164.0905)
	d := NewDetector(0.05, cd)
	now := time.Date(2026, 8, 22, 4, 0, 0, 0, time.UTC)
	stars := []catalog.Star{star("Hot", 100.0), star("Cold", 99.99)}

	cd.MarkFired("Hot", now.Add(-time.Hour))
	got := d.JustCrossed(stars, 100.005, now)
	if len(got) != 1 || got[0].Star.Name != "Cold" {
		t.Fatalf("JustCrossed = %+v, want only Cold", got)
	}

	// After the window expires the star competes again.
	later := now.Add(cd.Window())
	got = d.JustCrossed(stars, 100.005, later)
	if len(got) != 2 {
		t.Fatalf("JustCrossed after cooldown expiry = %+v, want both", got)
	}
}

// TestJustCrossedOrdering: candidates come back closest-first so the caller
// can fire the most recent crossing.
func TestJustCrossedOrdering(t *testing.T) {
	d := freshDetector(0.1)
	stars := []catalog.Star{
		star("Oldest", 99.92),
		star("Newest", 99.99),
		star("Middle", 99.95),
	}
	got := d.JustCrossed(stars, 100.0, time.Now())
	if len(got) != 3 {
		t.Fatalf("got %d crossings, want 3", len(got))
	}
	want := []string{"Newest", "Middle", "Oldest"}
	for i, name := range want {
		if got[i].Star.Name != name {
			t.Errorf("position %d = %s, want %s", i, got[i].Star.Name, name)
		}
	}
}

// TestJustCrossedWrapAroundZero: crossings are detected across the 360->0
// seam.
func TestJustCrossedWrapAroundZero(t *testing.T) {
	d := freshDetector(0.05)
	stars := []catalog.Star{star("Seam", 359.995)}
	got := d.JustCrossed(stars, 0.005, time.Now())
	if len(got) != 1 {
		t.Fatalf("crossing across the zero seam missed: %+v", got)
	}
	if math.Abs(got[0].PastDeg-0.01) > 1e-9 {
		t.Errorf("PastDeg = %v, want 0.01", got[0].PastDeg)
	}
}
