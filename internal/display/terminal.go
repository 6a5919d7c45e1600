// Package display renders fired transits as terminal blocks, one glyph per
// spectral class, and drives the one-line countdown to the next approach.
package display

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/Logic-Beach/celestial-musicbox/internal/astro"
	"github.com/Logic-Beach/celestial-musicbox/internal/music"
	"github.com/Logic-Beach/celestial-musicbox/internal/scheduler"
	"github.com/Logic-Beach/celestial-musicbox/internal/transit"
)

// spectralSymbols maps spectral class letters to glyphs, hot to cool.
var spectralSymbols = map[byte]string{
	'O': "✦",
	'B': "★",
	'A': "⁑",
	'F': "●",
	'G': "•",
	'K': "◦",
	'M': "○",
	'L': "◐",
	'T': "◑",
}

const defaultSymbol = "•"

// chordLabels name the dyad's voices in firing order.
var chordLabels = []string{"color", "dist"}

// symbolFor picks the glyph for a spectral type like "A0V".
func symbolFor(spectral string) string {
	s := strings.TrimSpace(spectral)
	if s == "" {
		return defaultSymbol
	}
	c := s[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if sym, ok := spectralSymbols[c]; ok {
		return sym
	}
	return defaultSymbol
}

// symbolRepeat returns more copies for brighter stars (lower vmag).
func symbolRepeat(symbol string, vmag float64) string {
	switch {
	case vmag < 1:
		return strings.Repeat(symbol, 3)
	case vmag < 3.5:
		return strings.Repeat(symbol, 2)
	}
	return symbol
}

func chordLine(chord music.Chord) string {
	if len(chord) == 0 {
		return ""
	}
	parts := make([]string, len(chord))
	for i, n := range chord {
		label := ""
		if i < len(chordLabels) {
			label = chordLabels[i]
		}
		parts[i] = fmt.Sprintf("%s: %s", label, music.NoteName(n.Key))
	}
	return strings.Join(parts, "  ") + fmt.Sprintf("  @%d (vel=mag)", chord[0].Velocity)
}

func propLine(ev scheduler.Event) string {
	s := ev.Star
	bits := []string{fmt.Sprintf("vmag %.2f", s.VMag)}
	if s.MassSolar != nil {
		bits = append(bits, fmt.Sprintf("mass %.2f M☉", *s.MassSolar))
	}
	bits = append(bits, fmt.Sprintf("alt %.0f°", ev.AltitudeDeg))
	if s.Spectral != "" {
		bits = append(bits, s.Spectral)
	}
	if s.DistanceLY != nil {
		bits = append(bits, fmt.Sprintf("dist %.4g ly", *s.DistanceLY))
	}
	return strings.Join(bits, "  ")
}

func coordLine(ev scheduler.Event) string {
	return fmt.Sprintf("LST %.2fh  RA %.2f° (%.2fh)  Dec %+.2f°",
		ev.LSTDeg/15.0, ev.Star.RADeg, ev.Star.RADeg/15.0, ev.Star.DecDeg)
}

// coordWarning flags a block whose star is not actually on the meridian. At
// transit LST and RA agree; more than a degree apart means the clock or the
// catalog is wrong.
func coordWarning(ev scheduler.Event) string {
	diff := astro.ShortestArc(ev.LSTDeg, ev.Star.RADeg)
	if diff <= 1.0 {
		return ""
	}
	return fmt.Sprintf("  │  ⚠ LST and RA differ by %.2f°, star not at meridian!\n", diff)
}

func upNextLine(upcoming []transit.Approach) string {
	n := len(upcoming)
	if n > 3 {
		n = 3
	}
	parts := make([]string, 0, n)
	for _, a := range upcoming[:n] {
		if a.SecondsUntil > 0 {
			parts = append(parts, fmt.Sprintf("%s in %s", a.Star.Name, fmtDelta(a.SecondsUntil)))
		} else {
			parts = append(parts, a.Star.Name+" now")
		}
	}
	return strings.Join(parts, ", ")
}

// fmtDelta renders seconds as H:MM:SS.
func fmtDelta(seconds float64) string {
	s := int(math.Max(0, seconds))
	h := s / 3600
	m := (s % 3600) / 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s%60)
}

// FormatBlock renders one fired transit as the boxed block.
func FormatBlock(ev scheduler.Event) string {
	sym := symbolRepeat(symbolFor(ev.Star.Spectral), ev.Star.VMag)

	var b strings.Builder
	b.WriteString("\n  ╭─ TRANSIT ─────────╮\n")
	fmt.Fprintf(&b, "  │  %s  %s\n", sym, ev.Star.Name)
	fmt.Fprintf(&b, "  │  Stellar: %s\n", propLine(ev))
	fmt.Fprintf(&b, "  │  %s\n", coordLine(ev))
	if w := coordWarning(ev); w != "" {
		b.WriteString(w)
	}
	fmt.Fprintf(&b, "  │  Notes: %s\n", chordLine(ev.Chord))
	if len(ev.Upcoming) > 0 {
		fmt.Fprintf(&b, "  │  Up next: %s\n", upNextLine(ev.Upcoming))
	}
	b.WriteString("  ╰─────────╯\n")
	return b.String()
}

// Terminal is an action sink that prints a transit block per fire.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTerminal writes transit blocks to w, usually stdout.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// Name identifies the sink in logs and metrics.
func (t *Terminal) Name() string { return "display" }

// Fire prints the block for one transit.
func (t *Terminal) Fire(_ context.Context, ev scheduler.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.w, FormatBlock(ev))
	return err
}

// FormatCountdown is the one-line TTY countdown, padded so each render
// overwrites the last.
func FormatCountdown(name string, seconds float64) string {
	s := int(math.Max(0, seconds))
	return fmt.Sprintf("⏳ Next: %s  in  %02d:%02d:%02d  ", name, s/3600, (s%3600)/60, s%60)
}

// countdownLine projects the snapshot's soonest approach to now. Empty when
// there is nothing to show.
func countdownLine(snap *scheduler.Snapshot, now time.Time) string {
	if snap == nil || len(snap.Upcoming) == 0 {
		return ""
	}
	next := snap.Upcoming[0]
	remaining := next.SecondsUntil - now.Sub(snap.At).Seconds()
	return FormatCountdown(next.Star.Name, remaining)
}

// Countdown renders a once-a-second countdown of the next approach on w
// until the context ends, then clears the line. Call it only when w is a
// terminal.
func Countdown(ctx context.Context, status *scheduler.StatusStore, w io.Writer) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(w, "\r%s\r", strings.Repeat(" ", 60))
			return
		case <-ticker.C:
			if line := countdownLine(status.Get(), time.Now()); line != "" {
				fmt.Fprintf(w, "\r%s", line)
			}
		}
	}
}
