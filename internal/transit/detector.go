package transit

import (
	"sort"
	"time"

	"github.com/Logic-Beach/celestial-musicbox/internal/astro"
	"github.com/Logic-Beach/celestial-musicbox/internal/catalog"
)

// Crossing is one star observed just past the meridian.
type Crossing struct {
	Star catalog.Star
	// PastDeg is how many degrees of LST advance ago the crossing happened,
	// in (0, window].
	PastDeg float64
	// DiffDeg is the shortest-arc distance between LST and the star's RA.
	// For a star just past the meridian it equals PastDeg; it is carried
	// separately because ordering and display are defined on it.
	DiffDeg float64
}

// Detector finds stars whose meridian crossing happened within the last
// windowDeg degrees of LST advance.
type Detector struct {
	windowDeg float64
	cooldown  *Cooldown
}

// NewDetector wires the crossing window to the shared cooldown gate.
func NewDetector(windowDeg float64, cooldown *Cooldown) *Detector {
	return &Detector{windowDeg: windowDeg, cooldown: cooldown}
}

// JustCrossed scans the catalog against one LST sample. A star qualifies
// when its forward arc w from LST to RA satisfies w > 180, strictly, so the
// anti-transit point half a turn away never fires, and w >= 360 - window, so
// only a recent crossing counts. Stars still in cooldown are skipped before
// any angle math. Results come back ordered by ascending DiffDeg; the caller
// fires at most the first.
func (d *Detector) JustCrossed(stars []catalog.Star, lstDeg float64, now time.Time) []Crossing {
	var out []Crossing
	for _, s := range stars {
		if !d.cooldown.Eligible(s.Name, now) {
			continue
		}
		w := astro.ForwardArc(lstDeg, s.RADeg)
		if w > 180.0 && w >= 360.0-d.windowDeg {
			out = append(out, Crossing{
				Star:    s,
				PastDeg: 360.0 - w,
				DiffDeg: astro.ShortestArc(lstDeg, s.RADeg),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DiffDeg < out[j].DiffDeg })
	return out
}
