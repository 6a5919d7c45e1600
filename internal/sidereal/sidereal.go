// Package sidereal supplies local sidereal time to the scheduler loop.
//
// Two implementations exist: Local derives LST from the system clock, NTP
// layers a measured server offset on top of it. Both answer in degrees so
// the transit math never handles hours.
package sidereal

import (
	"context"
	"time"
)

// Sample is a single LST observation: the angle and the instant it was taken
// at. The loop evaluates a whole tick against one Sample so every star in a
// scan sees the same sky.
type Sample struct {
	LSTDeg float64
	At     time.Time
}

// Source produces LST samples for one observer longitude. Implementations
// return an error for a sample they cannot vouch for; the loop skips that
// tick rather than acting on a bad angle.
type Source interface {
	Sample(ctx context.Context) (Sample, error)

	// RateDegPerSec reports how fast LST advances. The loop uses it to
	// validate the poll interval against the crossing window and to turn
	// degrees-until-transit into seconds for display.
	RateDegPerSec() float64
}
