// Package stream implements Server-Sent Events (SSE) streaming of meridian
// transits. Clients connect via GET /api/v1/events and receive one message
// per fired transit, as it happens.
//
// SSE message format:
//
//	data: {"type":"transit","star":"Vega","keys":[50,40],...}\n\n
//
// First message is always a hello carrying the current loop state:
//
//	data: {"type":"hello","lst_deg":123.45,"catalog_size":50,...}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval so proxies do
// not cut the connection during the long quiet stretches between transits.
// Reconnecting clients receive a fresh hello on each connection.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/Logic-Beach/celestial-musicbox/internal/metrics"
	"github.com/Logic-Beach/celestial-musicbox/internal/scheduler"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrent      int           // Max concurrent streams overall (default: 200).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Honor X-Forwarded-For / X-Real-IP.
}

// Handler manages SSE streaming connections.
type Handler struct {
	events  *Broadcaster
	status  *scheduler.StatusStore
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a streaming handler fed by the given broadcaster.
// Zero config fields take the documented defaults.
func NewHandler(events *Broadcaster, status *scheduler.StatusStore, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP < 1 {
		config.MaxConcurrentPerIP = 10
	}
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 200
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		events:  events,
		status:  status,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:  logger,
	}
}

// HandleEvents serves the SSE transit stream.
// GET /api/v1/events
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	// Rate limiting: enforce concurrent stream limit per IP.
	ip := clientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
	)

	c := &client{ip: ip, logger: h.logger}

	// Cleanup on disconnect: release rate limit slot and update metrics.
	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"messages_sent", c.messagesSent,
			"bytes_sent", c.bytesSent,
		)
	}()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming not supported"})
		return
	}

	// Set SSE response headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Use ResponseController to manage write deadlines for long-lived SSE.
	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c.w = w
	c.flusher = flusher
	c.rc = rc

	// Send jittered retry interval (3-7s) to prevent thundering-herd
	// reconnection storms when the server restarts.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	// Send the hello message (first message on every connection).
	if snap := h.status.Get(); snap != nil {
		hello := helloMessage{
			Type:          "hello",
			LSTDeg:        snap.LSTDeg,
			RateDegPerSec: snap.RateDegPerSec,
			CatalogSize:   snap.CatalogSize,
			CooldownCount: snap.CooldownCount,
		}
		if err := c.sendJSON(hello); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error (hello)", "remote_ip", ip, "error", err)
			return
		}
	}

	sub, cancel := h.events.subscribe()
	defer cancel()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return

		case data := <-sub:
			if err := c.sendRaw(data); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			// Reset keepalive since we just sent data.
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}
