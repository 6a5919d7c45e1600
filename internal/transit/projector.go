package transit

import (
	"sort"

	"github.com/Logic-Beach/celestial-musicbox/internal/astro"
	"github.com/Logic-Beach/celestial-musicbox/internal/catalog"
)

// Approach is one star still heading toward the meridian. Serialized into
// status snapshots and the upcoming API response.
type Approach struct {
	Star         catalog.Star `json:"star"`
	DegUntil     float64      `json:"deg_until"`
	SecondsUntil float64      `json:"seconds_until"`
}

// Upcoming returns up to n approaching stars ordered soonest first. Stars
// past the meridian (forward arc of 180 or more) belong to the detector, not
// the preview. Display only: firing never depends on this projection and it
// ignores cooldown state on purpose, since "when does it culminate" is a
// question about the sky, not about what already played.
func Upcoming(stars []catalog.Star, lstDeg, rateDegPerSec float64, n int) []Approach {
	if n <= 0 || rateDegPerSec <= 0 {
		return nil
	}
	var out []Approach
	for _, s := range stars {
		w := astro.ForwardArc(lstDeg, s.RADeg)
		if w >= 180.0 {
			continue
		}
		out = append(out, Approach{Star: s, DegUntil: w, SecondsUntil: w / rateDegPerSec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DegUntil < out[j].DegUntil })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
