package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Logic-Beach/celestial-musicbox/internal/astro"
	"github.com/Logic-Beach/celestial-musicbox/internal/catalog"
	"github.com/Logic-Beach/celestial-musicbox/internal/metrics"
	"github.com/Logic-Beach/celestial-musicbox/internal/music"
	"github.com/Logic-Beach/celestial-musicbox/internal/sidereal"
	"github.com/Logic-Beach/celestial-musicbox/internal/transit"
)

// Config holds the loop tuning knobs.
type Config struct {
	// PollInterval is how often LST is sampled.
	PollInterval time.Duration
	// CrossingWindowDeg is how far past a star's RA the LST may be for the
	// crossing to still count. Must cover at least two polls of sidereal
	// motion so a crossing cannot fall between ticks.
	CrossingWindowDeg float64
	// CooldownFraction scales the sidereal day into the per-star suppression
	// window. Strictly between 0 and 1: a star transits once per sidereal
	// day, so a full-day window would race the next transit.
	CooldownFraction float64
	// SiderealDaySeconds is the cooldown base period.
	SiderealDaySeconds float64
	// UpcomingCount is how many approaching stars each snapshot and event
	// carries.
	UpcomingCount int
	// DisplayEvery publishes a snapshot every Nth tick even without a fire.
	DisplayEvery int
	// LatitudeDeg locates the observer for transit altitude.
	LatitudeDeg float64
}

// Validate checks the config against the measured sidereal rate.
func (c Config) Validate(rateDegPerSec float64) error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.CooldownFraction <= 0 || c.CooldownFraction >= 1 {
		return fmt.Errorf("cooldown fraction must be in (0, 1), got %g", c.CooldownFraction)
	}
	minWindow := rateDegPerSec * c.PollInterval.Seconds() * 2
	if c.CrossingWindowDeg < minWindow {
		return fmt.Errorf("crossing window %.4f deg cannot cover a %v poll interval (need at least %.4f deg)",
			c.CrossingWindowDeg, c.PollInterval, minWindow)
	}
	return nil
}

// Loop is the poll scheduler. It owns the cooldown table and the detector;
// everything else is injected.
type Loop struct {
	cfg      Config
	source   sidereal.Source
	stars    []catalog.Star
	cooldown *transit.Cooldown
	detector *transit.Detector
	sink     Sink
	status   *StatusStore
	logger   *slog.Logger

	lastFire *FireSummary
	ticks    uint64
}

// New wires a loop together. The catalog must be non-empty and the config
// must survive Validate against the source's rate.
func New(cfg Config, source sidereal.Source, stars []catalog.Star, sink Sink, status *StatusStore, logger *slog.Logger) (*Loop, error) {
	if len(stars) == 0 {
		return nil, fmt.Errorf("catalog is empty, nothing can transit")
	}
	if err := cfg.Validate(source.RateDegPerSec()); err != nil {
		return nil, err
	}
	if cfg.DisplayEvery < 1 {
		cfg.DisplayEvery = 1
	}
	cooldown := transit.NewCooldown(cfg.CooldownFraction, cfg.SiderealDaySeconds)
	metrics.SetCatalogStars(len(stars))
	return &Loop{
		cfg:      cfg,
		source:   source,
		stars:    stars,
		cooldown: cooldown,
		detector: transit.NewDetector(cfg.CrossingWindowDeg, cooldown),
		sink:     sink,
		status:   status,
		logger:   logger,
	}, nil
}

// Run primes the cooldown table, then polls until the context is cancelled.
// The returned error is the context's unless the first sample fails.
func (l *Loop) Run(ctx context.Context) error {
	sample, err := l.prime(ctx)
	if err != nil {
		return err
	}
	l.publish(sample)

	l.logger.Info("scheduler started",
		"poll_interval", l.cfg.PollInterval,
		"crossing_window_deg", l.cfg.CrossingWindowDeg,
		"cooldown", l.cooldown.Window(),
		"stars", len(l.stars),
	)

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// prime marks every star already inside the crossing window as fired so a
// restart does not replay a transit that happened while we were down.
func (l *Loop) prime(ctx context.Context) (sidereal.Sample, error) {
	sample, err := l.source.Sample(ctx)
	if err != nil {
		return sidereal.Sample{}, fmt.Errorf("initial sidereal sample: %w", err)
	}
	crossings := l.detector.JustCrossed(l.stars, sample.LSTDeg, sample.At)
	for _, c := range crossings {
		l.cooldown.MarkFired(c.Star.Name, sample.At)
	}
	if len(crossings) > 0 {
		l.logger.Info("suppressed stars already past the meridian",
			"count", len(crossings),
			"lst_deg", sample.LSTDeg,
		)
	}
	metrics.SetLSTDegrees(sample.LSTDeg)
	metrics.SetCooldownActive(l.cooldown.ActiveCount(sample.At))
	return sample, nil
}

func (l *Loop) tick(ctx context.Context) {
	start := time.Now()
	metrics.IncTicks()
	l.ticks++

	sample, err := l.source.Sample(ctx)
	if err != nil {
		metrics.IncSkippedTick("time_source")
		l.logger.Warn("skipping tick, time source unavailable", "error", err)
		return
	}
	metrics.SetLSTDegrees(sample.LSTDeg)

	crossings := l.detector.JustCrossed(l.stars, sample.LSTDeg, sample.At)
	fired := false
	if len(crossings) > 0 {
		l.fire(ctx, sample, crossings[0])
		fired = true
	}

	if fired || l.ticks%uint64(l.cfg.DisplayEvery) == 0 {
		l.publish(sample)
	}
	metrics.ObserveTickDuration(time.Since(start))
}

// fire runs the sink for one crossing and starts the star's cooldown. The
// cooldown is marked whether or not the sink succeeded: the transit happened.
func (l *Loop) fire(ctx context.Context, sample sidereal.Sample, c transit.Crossing) {
	chord := music.ChordFor(c.Star)
	ev := Event{
		ID:          uuid.New(),
		Star:        c.Star,
		Chord:       chord,
		LSTDeg:      sample.LSTDeg,
		DiffDeg:     c.DiffDeg,
		AltitudeDeg: astro.AltitudeAtTransit(c.Star.DecDeg, l.cfg.LatitudeDeg),
		At:          sample.At,
		Upcoming:    transit.Upcoming(l.stars, sample.LSTDeg, l.source.RateDegPerSec(), l.cfg.UpcomingCount),
	}

	keys := make([]uint8, len(chord))
	for i, n := range chord {
		keys[i] = n.Key
	}
	l.logger.Info("meridian transit",
		"star", c.Star.Name,
		"event_id", ev.ID,
		"lst_deg", sample.LSTDeg,
		"past_deg", c.PastDeg,
		"altitude_deg", ev.AltitudeDeg,
		"keys", keys,
	)

	if err := l.sink.Fire(ctx, ev); err != nil {
		metrics.IncSinkError(l.sink.Name())
		l.logger.Warn("action sink failed",
			"sink", l.sink.Name(),
			"star", c.Star.Name,
			"error", err,
		)
	}

	l.cooldown.MarkFired(c.Star.Name, sample.At)
	metrics.IncFires()
	metrics.SetCooldownActive(l.cooldown.ActiveCount(sample.At))
	l.lastFire = &FireSummary{
		ID:          ev.ID,
		Star:        c.Star.Name,
		LSTDeg:      sample.LSTDeg,
		AltitudeDeg: ev.AltitudeDeg,
		Keys:        keys,
		At:          sample.At,
	}
}

func (l *Loop) publish(sample sidereal.Sample) {
	if l.status == nil {
		return
	}
	l.status.Set(&Snapshot{
		LSTDeg:        sample.LSTDeg,
		RateDegPerSec: l.source.RateDegPerSec(),
		At:            sample.At,
		Upcoming:      transit.Upcoming(l.stars, sample.LSTDeg, l.source.RateDegPerSec(), l.cfg.UpcomingCount),
		CooldownCount: l.cooldown.ActiveCount(sample.At),
		CatalogSize:   len(l.stars),
		Ticks:         l.ticks,
		LastFire:      l.lastFire,
	})
}
