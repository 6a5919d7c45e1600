package sidereal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock hands out a controllable now.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// TestNTPSampleAppliesOffset verifies the sample clock is local time shifted
// by the measured offset.
func TestNTPSampleAppliesOffset(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 8, 22, 4, 30, 0, 0, time.UTC)}
	offset := 2 * time.Minute
	n := &NTP{
		lonDeg:   -122.27,
		host:     "test",
		resync:   time.Hour,
		query:    func(string, time.Duration) (time.Duration, error) { return offset, nil },
		logger:   testLogger(),
		now:      clock.now,
		offset:   offset,
		syncedAt: clock.t,
		rate:     measureRate(clock.t, -122.27),
	}

	s, err := n.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample returned error: %v", err)
	}
	wantAt := clock.t.Add(offset)
	if !s.At.Equal(wantAt) {
		t.Errorf("sample At = %v, want %v", s.At, wantAt)
	}
	if want := lstDeg(wantAt, -122.27); s.LSTDeg != want {
		t.Errorf("sample LST = %v, want %v", s.LSTDeg, want)
	}
}

// TestNTPResyncRefreshesOffset checks the offset is re-measured once the
// resync interval has elapsed and not before.
func TestNTPResyncRefreshesOffset(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 8, 22, 4, 30, 0, 0, time.UTC)}
	calls := 0
	n := &NTP{
		lonDeg: 0,
		host:   "test",
		resync: time.Hour,
		query: func(string, time.Duration) (time.Duration, error) {
			calls++
			return 5 * time.Second, nil
		},
		logger:   testLogger(),
		now:      clock.now,
		offset:   time.Second,
		syncedAt: clock.t,
		rate:     measureRate(clock.t, 0),
	}

	if _, err := n.Sample(context.Background()); err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if calls != 0 {
		t.Fatalf("query called %d times before resync interval", calls)
	}

	clock.advance(time.Hour + time.Minute)
	s, err := n.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample after resync: %v", err)
	}
	if calls != 1 {
		t.Fatalf("query called %d times, want 1", calls)
	}
	if n.offset != 5*time.Second {
		t.Errorf("offset = %v after refresh, want 5s", n.offset)
	}
	if wantAt := clock.t.Add(5 * time.Second); !s.At.Equal(wantAt) {
		t.Errorf("sample At = %v, want %v", s.At, wantAt)
	}
}

// TestNTPRefreshFailureKeepsOffset verifies a failed refresh keeps the stale
// offset, warns only once, and retries once per interval rather than every
// sample.
func TestNTPRefreshFailureKeepsOffset(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 8, 22, 4, 30, 0, 0, time.UTC)}
	calls := 0
	n := &NTP{
		lonDeg: 0,
		host:   "test",
		resync: time.Hour,
		query: func(string, time.Duration) (time.Duration, error) {
			calls++
			return 0, errors.New("server unreachable")
		},
		logger:   testLogger(),
		now:      clock.now,
		offset:   3 * time.Second,
		syncedAt: clock.t,
		rate:     measureRate(clock.t, 0),
	}

	clock.advance(2 * time.Hour)
	s, err := n.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample with failing refresh: %v", err)
	}
	if n.offset != 3*time.Second {
		t.Errorf("offset = %v after failed refresh, want unchanged 3s", n.offset)
	}
	if wantAt := clock.t.Add(3 * time.Second); !s.At.Equal(wantAt) {
		t.Errorf("sample At = %v, want %v", s.At, wantAt)
	}
	if !n.warned {
		t.Error("warned flag not set after failed refresh")
	}

	// Still inside the retry backoff window: no extra query.
	clock.advance(time.Minute)
	if _, err := n.Sample(context.Background()); err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if calls != 1 {
		t.Fatalf("query called %d times within one interval, want 1", calls)
	}

	// Next interval retries, still without a second warning cycle.
	clock.advance(time.Hour)
	if _, err := n.Sample(context.Background()); err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if calls != 2 {
		t.Fatalf("query called %d times after second interval, want 2", calls)
	}
	if !n.warned {
		t.Error("warned flag cleared despite refresh still failing")
	}
}

// TestNTPRecoveryClearsWarning verifies a successful refresh re-arms the
// warn-once behavior.
func TestNTPRecoveryClearsWarning(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 8, 22, 4, 30, 0, 0, time.UTC)}
	fail := true
	n := &NTP{
		lonDeg: 0,
		host:   "test",
		resync: time.Hour,
		query: func(string, time.Duration) (time.Duration, error) {
			if fail {
				return 0, errors.New("server unreachable")
			}
			return time.Second, nil
		},
		logger:   testLogger(),
		now:      clock.now,
		syncedAt: clock.t,
		rate:     measureRate(clock.t, 0),
	}

	clock.advance(2 * time.Hour)
	if _, err := n.Sample(context.Background()); err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if !n.warned {
		t.Fatal("warned flag not set")
	}

	fail = false
	clock.advance(2 * time.Hour)
	if _, err := n.Sample(context.Background()); err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if n.warned {
		t.Error("warned flag not cleared after successful refresh")
	}
	if n.offset != time.Second {
		t.Errorf("offset = %v, want 1s", n.offset)
	}
}
