package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Logic-Beach/celestial-musicbox/internal/astro"
	"github.com/Logic-Beach/celestial-musicbox/internal/catalog"
	"github.com/Logic-Beach/celestial-musicbox/internal/sidereal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedSource replays a fixed LST sequence, one value per call, on a
// synthetic clock that advances one step per call. The last value repeats.
type scriptedSource struct {
	lst  []float64
	errs map[int]error
	rate float64
	step time.Duration
	t    time.Time
	call int
}

func newScriptedSource(lst ...float64) *scriptedSource {
	return &scriptedSource{
		lst:  lst,
		rate: astro.MeanLSTRateDegPerSec,
		step: time.Second,
		t:    time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC),
	}
}

func (s *scriptedSource) Sample(context.Context) (sidereal.Sample, error) {
	i := s.call
	s.call++
	s.t = s.t.Add(s.step)
	if err := s.errs[i]; err != nil {
		return sidereal.Sample{}, err
	}
	if i >= len(s.lst) {
		i = len(s.lst) - 1
	}
	return sidereal.Sample{LSTDeg: s.lst[i], At: s.t}, nil
}

func (s *scriptedSource) RateDegPerSec() float64 { return s.rate }

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Fire(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func star(name string, raDeg float64) catalog.Star {
	return catalog.Star{Name: name, RADeg: raDeg, DecDeg: 10.0, VMag: 1.0}
}

func testConfig() Config {
	return Config{
		PollInterval:       time.Second,
		CrossingWindowDeg:  0.5,
		CooldownFraction:   0.98,
		SiderealDaySeconds: astro.SiderealDaySeconds,
		UpcomingCount:      3,
		DisplayEvery:       1,
		LatitudeDeg:        36.0,
	}
}

func TestConfigValidate(t *testing.T) {
	rate := astro.MeanLSTRateDegPerSec
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, true},
		{"negative poll interval", func(c *Config) { c.PollInterval = -time.Second }, true},
		{"zero cooldown fraction", func(c *Config) { c.CooldownFraction = 0 }, true},
		{"full cooldown fraction", func(c *Config) { c.CooldownFraction = 1 }, true},
		{"window below two polls of motion", func(c *Config) { c.CrossingWindowDeg = rate }, true},
		{"window at exactly two polls", func(c *Config) { c.CrossingWindowDeg = rate * 2.0 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate(rate)
			if tc.wantErr && err == nil {
				t.Fatal("expected an error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewRejectsEmptyCatalog(t *testing.T) {
	src := newScriptedSource(100.0)
	if _, err := New(testConfig(), src, nil, &recordingSink{}, nil, testLogger()); err == nil {
		t.Fatal("expected an error for an empty catalog")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.CrossingWindowDeg = 0
	src := newScriptedSource(100.0)
	stars := []catalog.Star{star("Vega", 279.0)}
	if _, err := New(cfg, src, stars, &recordingSink{}, nil, testLogger()); err == nil {
		t.Fatal("expected config validation to fail")
	}
}

func TestLoopFiresOnceOnCrossing(t *testing.T) {
	src := newScriptedSource(99.99, 100.01, 100.02)
	sink := &recordingSink{}
	status := NewStatusStore()
	stars := []catalog.Star{star("Target", 100.0), star("Far", 200.0)}

	l, err := New(testConfig(), src, stars, sink, status, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	sample, err := l.prime(ctx)
	if err != nil {
		t.Fatalf("prime: %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("prime must not fire sinks, got %d events", len(sink.events))
	}
	l.publish(sample)

	l.tick(ctx)
	if len(sink.events) != 1 {
		t.Fatalf("expected exactly one fire, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Star.Name != "Target" {
		t.Fatalf("fired %q, want Target", ev.Star.Name)
	}
	if ev.LSTDeg != 100.01 {
		t.Fatalf("event LST = %v, want 100.01", ev.LSTDeg)
	}
	if math.Abs(ev.DiffDeg-0.01) > 1e-9 {
		t.Fatalf("event DiffDeg = %v, want ~0.01", ev.DiffDeg)
	}
	if ev.ID == uuid.Nil {
		t.Fatal("event ID is nil")
	}
	if len(ev.Chord) != 2 {
		t.Fatalf("chord has %d notes, want 2", len(ev.Chord))
	}
	if ev.At.IsZero() {
		t.Fatal("event time is zero")
	}
	if len(ev.Upcoming) != 1 || ev.Upcoming[0].Star.Name != "Far" {
		t.Fatalf("upcoming = %+v, want just Far", ev.Upcoming)
	}

	l.tick(ctx)
	if len(sink.events) != 1 {
		t.Fatalf("cooldown should hold the fire count at 1, got %d", len(sink.events))
	}

	snap := status.Get()
	if snap == nil {
		t.Fatal("no snapshot published")
	}
	if snap.LSTDeg != 100.02 {
		t.Fatalf("snapshot LST = %v, want 100.02", snap.LSTDeg)
	}
	if snap.Ticks != 2 {
		t.Fatalf("snapshot ticks = %d, want 2", snap.Ticks)
	}
	if snap.CatalogSize != 2 {
		t.Fatalf("snapshot catalog size = %d, want 2", snap.CatalogSize)
	}
	if snap.LastFire == nil || snap.LastFire.Star != "Target" {
		t.Fatalf("snapshot last fire = %+v, want Target", snap.LastFire)
	}
	if snap.CooldownCount != 1 {
		t.Fatalf("snapshot cooldown count = %d, want 1", snap.CooldownCount)
	}
}

func TestLoopPrimeSuppressesMidWindow(t *testing.T) {
	src := newScriptedSource(100.2, 100.3)
	sink := &recordingSink{}
	stars := []catalog.Star{star("Behind", 100.0)}

	l, err := New(testConfig(), src, stars, sink, nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if _, err := l.prime(ctx); err != nil {
		t.Fatalf("prime: %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("prime fired a sink: %+v", sink.events)
	}

	l.tick(ctx)
	if len(sink.events) != 0 {
		t.Fatalf("primed star must stay suppressed, got %d events", len(sink.events))
	}
}

func TestLoopStepNeverSkipsCrossing(t *testing.T) {
	// Window at the validation floor: two polls of sidereal motion. The LST
	// script advances one poll of motion per tick, so the crossing must land
	// inside the window on the first tick past it.
	r := astro.MeanLSTRateDegPerSec
	cfg := testConfig()
	cfg.CrossingWindowDeg = r * 2.0

	ra := 100.0
	src := newScriptedSource(ra-2.5*r, ra-1.5*r, ra-0.5*r, ra+0.5*r, ra+1.5*r)
	sink := &recordingSink{}
	stars := []catalog.Star{star("Swept", ra)}

	l, err := New(cfg, src, stars, sink, nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if _, err := l.prime(ctx); err != nil {
		t.Fatalf("prime: %v", err)
	}
	for i := 0; i < 4; i++ {
		l.tick(ctx)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected exactly one fire across the sweep, got %d", len(sink.events))
	}
	if got := sink.events[0].DiffDeg; math.Abs(got-0.5*r) > 1e-9 {
		t.Fatalf("fired %v deg past the meridian, want %v", got, 0.5*r)
	}
}

func TestLoopBadSampleSkipsTickThenCatchesUp(t *testing.T) {
	src := newScriptedSource(99.99, 100.00, 100.01)
	src.errs = map[int]error{1: errors.New("ntp timeout")}
	sink := &recordingSink{}
	stars := []catalog.Star{star("Target", 100.0)}

	l, err := New(testConfig(), src, stars, sink, nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if _, err := l.prime(ctx); err != nil {
		t.Fatalf("prime: %v", err)
	}

	l.tick(ctx) // errors, skipped
	if len(sink.events) != 0 {
		t.Fatalf("errored tick must not fire, got %d events", len(sink.events))
	}

	l.tick(ctx) // next good sample still inside the window
	if len(sink.events) != 1 {
		t.Fatalf("crossing missed during the outage was not caught, got %d events", len(sink.events))
	}
	if sink.events[0].LSTDeg != 100.01 {
		t.Fatalf("caught up at LST %v, want 100.01", sink.events[0].LSTDeg)
	}
}

func TestLoopSinkErrorStillMarksCooldown(t *testing.T) {
	src := newScriptedSource(99.99, 100.01, 100.02)
	sink := &recordingSink{err: errors.New("midi port gone")}
	status := NewStatusStore()
	stars := []catalog.Star{star("Target", 100.0)}

	l, err := New(testConfig(), src, stars, sink, status, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if _, err := l.prime(ctx); err != nil {
		t.Fatalf("prime: %v", err)
	}
	l.tick(ctx)
	l.tick(ctx)
	if len(sink.events) != 1 {
		t.Fatalf("sink failure must not cause a refire, got %d events", len(sink.events))
	}
	snap := status.Get()
	if snap == nil || snap.LastFire == nil || snap.LastFire.Star != "Target" {
		t.Fatalf("fire not recorded in status after sink failure: %+v", snap)
	}
}

func TestLoopRefiresAfterCooldownExpires(t *testing.T) {
	cfg := testConfig()
	cfg.CooldownFraction = 0.5
	cfg.SiderealDaySeconds = 4.0 // 2s cooldown on the scripted 1s clock

	src := newScriptedSource(99.99, 100.01, 100.02, 100.03)
	sink := &recordingSink{}
	stars := []catalog.Star{star("Target", 100.0)}

	l, err := New(cfg, src, stars, sink, nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if _, err := l.prime(ctx); err != nil {
		t.Fatalf("prime: %v", err)
	}
	l.tick(ctx) // fires at 100.01
	l.tick(ctx) // 1s into a 2s cooldown, suppressed
	if len(sink.events) != 1 {
		t.Fatalf("fire count after suppression = %d, want 1", len(sink.events))
	}
	l.tick(ctx) // cooldown expired, still inside the window
	if len(sink.events) != 2 {
		t.Fatalf("fire count after cooldown expiry = %d, want 2", len(sink.events))
	}
}

func TestLoopAtMostOneFirePerTick(t *testing.T) {
	src := newScriptedSource(99.5, 100.01, 100.12)
	sink := &recordingSink{}
	stars := []catalog.Star{star("AlsoNear", 99.9), star("Near", 100.0)}

	l, err := New(testConfig(), src, stars, sink, nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if _, err := l.prime(ctx); err != nil {
		t.Fatalf("prime: %v", err)
	}

	l.tick(ctx)
	if len(sink.events) != 1 {
		t.Fatalf("tick with two candidates fired %d times, want 1", len(sink.events))
	}
	if sink.events[0].Star.Name != "Near" {
		t.Fatalf("fired %q first, want the closest star Near", sink.events[0].Star.Name)
	}

	l.tick(ctx)
	if len(sink.events) != 2 {
		t.Fatalf("queued candidate did not fire on the next tick, got %d events", len(sink.events))
	}
	if sink.events[1].Star.Name != "AlsoNear" {
		t.Fatalf("second fire was %q, want AlsoNear", sink.events[1].Star.Name)
	}
}

func TestLoopPublishCadence(t *testing.T) {
	cfg := testConfig()
	cfg.DisplayEvery = 3

	src := newScriptedSource(50.0)
	status := NewStatusStore()
	stars := []catalog.Star{star("Idle", 200.0)}

	l, err := New(cfg, src, stars, &recordingSink{}, status, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	sample, err := l.prime(ctx)
	if err != nil {
		t.Fatalf("prime: %v", err)
	}
	l.publish(sample)

	l.tick(ctx)
	l.tick(ctx)
	if got := status.Get().Ticks; got != 0 {
		t.Fatalf("snapshot updated off-cadence at tick %d", got)
	}
	l.tick(ctx)
	if got := status.Get().Ticks; got != 3 {
		t.Fatalf("snapshot ticks = %d, want 3", got)
	}
}

func TestLoopRunStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 5 * time.Millisecond

	src := newScriptedSource(50.0)
	status := NewStatusStore()
	stars := []catalog.Star{star("Idle", 200.0)}

	l, err := New(cfg, src, stars, &recordingSink{}, status, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if status.Get() == nil {
		t.Fatal("Run never published an initial snapshot")
	}
}

func TestLoopRunFailsWhenFirstSampleFails(t *testing.T) {
	errProbe := errors.New("clock unreachable")
	src := newScriptedSource(50.0)
	src.errs = map[int]error{0: errProbe}
	stars := []catalog.Star{star("Idle", 200.0)}

	l, err := New(testConfig(), src, stars, &recordingSink{}, nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.Run(context.Background()); !errors.Is(err, errProbe) {
		t.Fatalf("Run returned %v, want the probe error", err)
	}
}

func TestMultiSinkDeliversPastFailures(t *testing.T) {
	bad := &recordingSink{err: errors.New("broken")}
	good := &recordingSink{}
	m := NewMultiSink(testLogger(), bad, good)

	if m.Name() != "multi" {
		t.Fatalf("Name = %q, want multi", m.Name())
	}
	ev := Event{ID: uuid.New(), Star: star("Vega", 279.0)}
	if err := m.Fire(context.Background(), ev); err != nil {
		t.Fatalf("MultiSink.Fire returned %v, want nil", err)
	}
	if len(bad.events) != 1 || len(good.events) != 1 {
		t.Fatalf("delivery counts = %d/%d, want 1/1", len(bad.events), len(good.events))
	}
}
