package main

import (
	"fmt"
	"os"

	"github.com/Logic-Beach/celestial-musicbox/internal/midiout"
)

func main() {
	defer midiout.Close()

	names := midiout.PortNames()
	if len(names) == 0 {
		fmt.Println("No MIDI output ports found. Connect a synth or create a virtual port.")
		os.Exit(1)
	}

	fmt.Printf("Found %d MIDI output port(s):\n", len(names))
	for i, n := range names {
		fmt.Printf("  %d: %s\n", i, n)
	}
}
