package sidereal

import (
	"context"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/Logic-Beach/celestial-musicbox/internal/astro"
)

// julianDate converts a UTC instant to Julian Date, keeping nanosecond
// precision. Standard astronomical algorithm, valid for all modern dates.
func julianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	h := float64(t.Hour())
	min := float64(t.Minute())
	s := float64(t.Second()) + float64(t.Nanosecond())/1e9

	// Jan/Feb count as months 13/14 of the previous year.
	if m <= 2 {
		y -= 1
		m += 12
	}

	A := math.Floor(y / 100)
	B := 2 - A + math.Floor(A/4)

	jd := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + B - 1524.5
	jd += (h + min/60.0 + s/3600.0) / 24.0

	return jd
}

// lstDeg computes local sidereal time in degrees [0, 360) for the given
// instant and east-positive longitude. Greenwich mean sidereal time comes
// from the go-satellite ThetaG_JD implementation of the Astronomical
// Almanac formula.
func lstDeg(t time.Time, lonDeg float64) float64 {
	gmstRad := satellite.ThetaG_JD(julianDate(t))
	return astro.Normalize360(gmstRad*180.0/math.Pi + lonDeg)
}

// measureRate estimates the LST advance rate at t by a one-second finite
// difference. A degenerate result (wraparound artifact or zero) falls back
// to the mean sidereal rate.
func measureRate(t time.Time, lonDeg float64) float64 {
	d := astro.Normalize360(lstDeg(t.Add(time.Second), lonDeg) - lstDeg(t, lonDeg))
	if d <= 1e-9 || d >= 360.0-1e-9 {
		return astro.MeanLSTRateDegPerSec
	}
	return d
}

// Local derives LST from the system clock. Sampling never fails: the only
// failure mode a local clock has is being wrong, which no code here can see.
type Local struct {
	lonDeg float64
	rate   float64
	now    func() time.Time
}

// NewLocal returns a Source for the given east-positive longitude. The LST
// rate is measured once at construction.
func NewLocal(lonDeg float64) *Local {
	l := &Local{lonDeg: lonDeg, now: time.Now}
	l.rate = measureRate(l.now(), lonDeg)
	return l
}

func (l *Local) Sample(_ context.Context) (Sample, error) {
	t := l.now()
	return Sample{LSTDeg: lstDeg(t, l.lonDeg), At: t}, nil
}

func (l *Local) RateDegPerSec() float64 { return l.rate }
