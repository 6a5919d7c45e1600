// Package scheduler runs the poll loop that turns meridian crossings into
// fired actions: sample LST, find stars just past transit, fire the closest
// one through the configured sinks, and hold it in cooldown for most of a
// sidereal day.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Logic-Beach/celestial-musicbox/internal/catalog"
	"github.com/Logic-Beach/celestial-musicbox/internal/metrics"
	"github.com/Logic-Beach/celestial-musicbox/internal/music"
	"github.com/Logic-Beach/celestial-musicbox/internal/transit"
)

// Event is everything a sink receives about one firing. The display fields
// are computed once per fire, never per poll.
type Event struct {
	ID          uuid.UUID
	Star        catalog.Star
	Chord       music.Chord
	LSTDeg      float64
	DiffDeg     float64
	AltitudeDeg float64
	At          time.Time
	// Upcoming previews the next approaching stars at fire time, for sinks
	// that render context around the crossing.
	Upcoming []transit.Approach
}

// Sink performs the side effect for one detected crossing. A sink error is
// logged and counted but never stops the loop or the cooldown update: the
// star crossed the meridian whether or not the action landed.
type Sink interface {
	Name() string
	Fire(ctx context.Context, ev Event) error
}

// MultiSink fans one firing out to several sinks in order. Each failure is
// logged and counted against that sink; the rest still run.
type MultiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMultiSink builds the fan-out. Order is preserved, so visuals can go
// before the blocking MIDI hold.
func NewMultiSink(logger *slog.Logger, sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks, logger: logger}
}

func (m *MultiSink) Name() string { return "multi" }

// Fire delivers the event to every sink. It never returns an error itself;
// partial failure is a per-sink affair.
func (m *MultiSink) Fire(ctx context.Context, ev Event) error {
	for _, s := range m.sinks {
		if err := s.Fire(ctx, ev); err != nil {
			metrics.IncSinkError(s.Name())
			m.logger.Warn("action sink failed",
				"sink", s.Name(),
				"star", ev.Star.Name,
				"event_id", ev.ID,
				"error", err,
			)
		}
	}
	return nil
}
