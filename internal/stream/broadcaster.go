package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Logic-Beach/celestial-musicbox/internal/metrics"
	"github.com/Logic-Beach/celestial-musicbox/internal/music"
	"github.com/Logic-Beach/celestial-musicbox/internal/scheduler"
)

// subscriberBuffer is how many unread messages a subscriber may lag behind
// before fires are dropped for it. Transits arrive minutes apart, so a full
// buffer means the client stopped reading.
const subscriberBuffer = 8

// Broadcaster fans fired transits out to SSE subscribers. It is an action
// sink: the scheduler hands it each event and it never blocks the loop. A
// subscriber that cannot keep up loses messages, not the connection.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[chan []byte]struct{}
	logger *slog.Logger
}

// NewBroadcaster creates a Broadcaster with no subscribers.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[chan []byte]struct{}),
		logger: logger,
	}
}

// Name identifies the sink in logs and metrics.
func (b *Broadcaster) Name() string { return "stream" }

// Fire marshals the event once and offers it to every subscriber without
// blocking.
func (b *Broadcaster) Fire(_ context.Context, ev scheduler.Event) error {
	data, err := json.Marshal(newTransitMessage(ev))
	if err != nil {
		return fmt.Errorf("marshal transit message: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- data:
		default:
			metrics.IncStreamErrors("slow_subscriber")
			b.logger.Warn("dropping transit for slow subscriber", "star", ev.Star.Name)
		}
	}
	return nil
}

// subscribe registers a new subscriber channel. The returned cancel func
// must be called on disconnect.
func (b *Broadcaster) subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
}

// SubscriberCount reports how many clients are attached.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// SSE message payload types.

type transitMessage struct {
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	Star        string    `json:"star"`
	LSTDeg      float64   `json:"lst_deg"`
	AltitudeDeg float64   `json:"altitude_deg"`
	Keys        []uint8   `json:"keys"`
	Notes       []string  `json:"notes"`
	Velocity    uint8     `json:"velocity"`
	At          time.Time `json:"at"`
}

func newTransitMessage(ev scheduler.Event) transitMessage {
	keys := make([]uint8, len(ev.Chord))
	notes := make([]string, len(ev.Chord))
	var velocity uint8
	for i, n := range ev.Chord {
		keys[i] = n.Key
		notes[i] = music.NoteName(n.Key)
		velocity = n.Velocity
	}
	return transitMessage{
		Type:        "transit",
		ID:          ev.ID.String(),
		Star:        ev.Star.Name,
		LSTDeg:      ev.LSTDeg,
		AltitudeDeg: ev.AltitudeDeg,
		Keys:        keys,
		Notes:       notes,
		Velocity:    velocity,
		At:          ev.At.UTC(),
	}
}

type helloMessage struct {
	Type          string  `json:"type"`
	LSTDeg        float64 `json:"lst_deg"`
	RateDegPerSec float64 `json:"rate_deg_per_sec"`
	CatalogSize   int     `json:"catalog_size"`
	CooldownCount int     `json:"cooldown_count"`
}
