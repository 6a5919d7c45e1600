// Package astro holds the degree-domain angle arithmetic the transit logic
// is built on: normalization to [0, 360), the directed forward arc that
// answers "how far until this RA culminates", and the undirected shortest
// arc used for closeness checks. Every angular comparison in the repo goes
// through one of these three functions.
package astro

import "math"

const (
	// SiderealDaySeconds is the mean sidereal day: the period after which
	// local sidereal time repeats.
	SiderealDaySeconds = 86164.0905

	// MeanLSTRateDegPerSec is the mean rate of LST advance, used when a
	// time source cannot measure the instantaneous rate.
	MeanLSTRateDegPerSec = 360.0 / SiderealDaySeconds
)

// Normalize360 reduces x modulo 360 into [0, 360). A value that rounds to
// exactly 360.0 maps to 0 so callers never see the upper bound.
func Normalize360(x float64) float64 {
	v := math.Mod(x, 360.0)
	if v < 0 {
		v += 360.0
	}
	if v >= 360.0 {
		return 0.0
	}
	return v
}

// ForwardArc returns how many degrees `from` must advance, always in the
// direction of increasing angle, to reach `to`. Zero means the two angles
// coincide; values above 180 mean `to` was passed less than half a turn ago.
func ForwardArc(from, to float64) float64 {
	return Normalize360(to - from)
}

// ShortestArc returns the undirected angular distance between a and b,
// in [0, 180]. It is symmetric and carries no direction information;
// direction decisions always go through ForwardArc.
func ShortestArc(a, b float64) float64 {
	d := math.Mod(a-b+180.0, 360.0)
	if d < 0 {
		d += 360.0
	}
	return math.Abs(d - 180.0)
}

// AltitudeAtTransit returns the altitude in degrees of an object with the
// given declination as it crosses the meridian for an observer at latDeg.
// The cosine is clamped against rounding before the asin.
func AltitudeAtTransit(decDeg, latDeg float64) float64 {
	c := math.Cos((decDeg - latDeg) * math.Pi / 180.0)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Asin(c) * 180.0 / math.Pi
}
