package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Logic-Beach/celestial-musicbox/internal/transit"
)

// FireSummary is the last firing as seen by status readers.
type FireSummary struct {
	ID          uuid.UUID `json:"id"`
	Star        string    `json:"star"`
	LSTDeg      float64   `json:"lst_deg"`
	AltitudeDeg float64   `json:"altitude_deg"`
	Keys        []uint8   `json:"keys"`
	At          time.Time `json:"at"`
}

// Snapshot is one published view of the loop: current LST, the upcoming
// approaches, and counters. Readers get a consistent value; the loop
// replaces the whole snapshot on publish.
type Snapshot struct {
	LSTDeg        float64            `json:"lst_deg"`
	RateDegPerSec float64            `json:"rate_deg_per_sec"`
	At            time.Time          `json:"at"`
	Upcoming      []transit.Approach `json:"upcoming"`
	CooldownCount int                `json:"cooldown_count"`
	CatalogSize   int                `json:"catalog_size"`
	Ticks         uint64             `json:"ticks"`
	LastFire      *FireSummary       `json:"last_fire,omitempty"`
}

// StatusStore provides thread-safe access to the latest snapshot.
type StatusStore struct {
	snap atomic.Pointer[Snapshot]
}

// NewStatusStore creates a new empty StatusStore.
func NewStatusStore() *StatusStore {
	return &StatusStore{}
}

// Get returns the current snapshot, or nil if the loop has not published yet.
func (s *StatusStore) Get() *Snapshot {
	return s.snap.Load()
}

// Set atomically replaces the current snapshot.
func (s *StatusStore) Set(snap *Snapshot) {
	s.snap.Store(snap)
}

// AgeSeconds returns the age of the current snapshot in seconds.
// Returns -1 if nothing has been published.
func (s *StatusStore) AgeSeconds() float64 {
	snap := s.snap.Load()
	if snap == nil {
		return -1
	}
	return time.Since(snap.At).Seconds()
}
