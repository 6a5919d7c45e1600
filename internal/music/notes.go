// Package music maps stellar properties onto MIDI: one two-note chord per
// star. Color index drives the first pitch, distance the second, apparent
// magnitude the shared velocity.
package music

import (
	"fmt"
	"math"

	"github.com/Logic-Beach/celestial-musicbox/internal/catalog"
)

const (
	noteLo = 0
	noteHi = 60

	velocityLo = 40
	velocityHi = 115

	// DefaultDistanceLY stands in when a star has no distance measurement.
	DefaultDistanceLY = 10.0

	// DefaultBV stands in when a star has no color index. Roughly solar.
	DefaultBV = 0.65
)

// Note is one MIDI note with its velocity.
type Note struct {
	Key      uint8
	Velocity uint8
}

// Chord is the ordered pair of notes fired for one star: color pitch first,
// distance pitch second.
type Chord []Note

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func lerp(t, a, b float64) float64 {
	return a + t*(b-a)
}

func toKey(t float64) uint8 {
	return uint8(math.Round(lerp(clamp(t, 0, 1), noteLo, noteHi)))
}

// KeyFromBV maps color index to pitch: blue (≈ -0.4) high, red (≈ +2) low.
func KeyFromBV(bv float64) uint8 {
	return toKey((2.0 - clamp(bv, -0.4, 2.0)) / 2.4)
}

// KeyFromDistance maps distance in light-years to pitch on a log scale:
// near high, far low. Non-positive distances take the default.
func KeyFromDistance(ly float64) uint8 {
	if ly <= 0 {
		ly = DefaultDistanceLY
	}
	return toKey(1.0 - math.Log10(clamp(ly, 1, 15000))/4.2)
}

// VelocityFromMagnitude maps apparent magnitude to velocity: brighter is
// louder.
func VelocityFromMagnitude(mag float64) uint8 {
	t := (clamp(mag, -1.5, 8) + 1.5) / 9.5
	return uint8(math.Round(lerp(1.0-t, velocityLo, velocityHi)))
}

// ChordFor builds the chord for one star, filling gaps in the data with the
// package defaults.
func ChordFor(s catalog.Star) Chord {
	bv := DefaultBV
	if s.BV != nil {
		bv = *s.BV
	}
	d := DefaultDistanceLY
	if s.DistanceLY != nil && *s.DistanceLY > 0 {
		d = *s.DistanceLY
	}
	vel := VelocityFromMagnitude(s.VMag)
	return Chord{
		{Key: KeyFromBV(bv), Velocity: vel},
		{Key: KeyFromDistance(math.Max(1.0, d)), Velocity: vel},
	}
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName renders a MIDI key as pitch plus octave, middle C (60) being "C4".
func NoteName(key uint8) string {
	return fmt.Sprintf("%s%d", noteNames[key%12], int(key)/12-1)
}
