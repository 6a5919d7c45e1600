// Package midiout plays each fired transit as a MIDI chord on an external
// synth. Uses the rtmidi driver; run cmd/midiports to see what it can see.
package midiout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // registers the rtmidi driver

	"github.com/Logic-Beach/celestial-musicbox/internal/scheduler"
)

// DefaultNoteDuration is how long the chord rings per star.
const DefaultNoteDuration = 600 * time.Millisecond

// Sender delivers one MIDI message. It is the seam between the sink and the
// driver so tests can capture messages without hardware.
type Sender func(msg midi.Message) error

// Out is an action sink that plays each event's chord on one output port.
type Out struct {
	send     Sender
	portName string
	duration time.Duration
	channel  uint8
	sleep    func(time.Duration)
	logger   *slog.Logger
}

// PortNames lists the MIDI output ports visible to the driver.
func PortNames() []string {
	ports := midi.GetOutPorts()
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.String()
	}
	return names
}

// Open connects to a MIDI output port. A non-empty name selects the first
// port whose name contains it, case-insensitive; no match, or an empty name,
// falls back to the first port. No ports at all is an error.
func Open(name string, duration time.Duration, logger *slog.Logger) (*Out, error) {
	port, err := findPort(name)
	if err != nil {
		return nil, err
	}
	send, err := midi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("opening MIDI port %s: %w", port.String(), err)
	}
	if duration <= 0 {
		duration = DefaultNoteDuration
	}
	logger.Info("midi output open", "port", port.String(), "note_duration", duration)
	return &Out{
		send:     send,
		portName: port.String(),
		duration: duration,
		sleep:    time.Sleep,
		logger:   logger,
	}, nil
}

func findPort(name string) (drivers.Out, error) {
	ports := midi.GetOutPorts()
	if len(ports) == 0 {
		return nil, fmt.Errorf("no MIDI output ports found, connect a synth or create a virtual port")
	}
	if name != "" {
		for _, p := range ports {
			if strings.Contains(strings.ToLower(p.String()), strings.ToLower(name)) {
				return p, nil
			}
		}
	}
	return ports[0], nil
}

// Name identifies the sink in logs and metrics.
func (o *Out) Name() string { return "midi" }

// Port reports the connected port name.
func (o *Out) Port() string { return o.portName }

// Fire plays the chord: note-on for every note at once, hold, note-off.
// Note-off is attempted for every note even after a send failure, so a
// half-played chord cannot leave notes ringing.
func (o *Out) Fire(_ context.Context, ev scheduler.Event) error {
	for i, n := range ev.Chord {
		if err := o.send(midi.NoteOn(o.channel, n.Key, n.Velocity)); err != nil {
			for _, on := range ev.Chord[:i] {
				o.send(midi.NoteOff(o.channel, on.Key))
			}
			return fmt.Errorf("note on %d: %w", n.Key, err)
		}
	}

	o.sleep(o.duration)

	var firstErr error
	for _, n := range ev.Chord {
		if err := o.send(midi.NoteOff(o.channel, n.Key)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("note off %d: %w", n.Key, err)
		}
	}
	return firstErr
}

// Close releases the MIDI driver. Call once at shutdown.
func Close() {
	midi.CloseDriver()
}
