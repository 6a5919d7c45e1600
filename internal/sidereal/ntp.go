package sidereal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/beevik/ntp"
)

// Querier fetches the offset between a time server's clock and the local
// clock. Satisfied by queryNTP; tests substitute a scripted function.
type Querier func(host string, timeout time.Duration) (time.Duration, error)

// queryNTP asks the server for its clock offset relative to the local clock
// and rejects responses that fail the protocol sanity checks.
func queryNTP(host string, timeout time.Duration) (time.Duration, error) {
	resp, err := ntp.QueryWithOptions(host, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}

// NTPConfig configures an NTP-disciplined source.
type NTPConfig struct {
	Host    string        // e.g. "pool.ntp.org"
	LonDeg  float64       // observer longitude, east positive
	Timeout time.Duration // per-query timeout, default 5s
	Resync  time.Duration // offset refresh interval, default 1h
}

// NTP is a Source whose clock is disciplined by a time server: every sample
// is local-now shifted by the most recently measured offset. The offset is
// refreshed once it is older than the resync interval; a failed refresh
// keeps the stale offset, which drifts far too slowly to matter within the
// crossing window, and warns once per instance until a refresh succeeds.
//
// Not safe for concurrent use. The loop is the only caller.
type NTP struct {
	lonDeg  float64
	host    string
	timeout time.Duration
	resync  time.Duration
	query   Querier
	logger  *slog.Logger
	now     func() time.Time

	offset   time.Duration
	syncedAt time.Time
	warned   bool
	rate     float64
}

// NewNTP creates the source and performs the initial offset query. An
// unreachable server here is fatal: starting the loop without a trusted
// clock would misfire for hours before anyone noticed.
func NewNTP(cfg NTPConfig, logger *slog.Logger) (*NTP, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Resync <= 0 {
		cfg.Resync = time.Hour
	}
	n := &NTP{
		lonDeg:  cfg.LonDeg,
		host:    cfg.Host,
		timeout: cfg.Timeout,
		resync:  cfg.Resync,
		query:   queryNTP,
		logger:  logger,
		now:     time.Now,
	}
	off, err := n.query(n.host, n.timeout)
	if err != nil {
		return nil, fmt.Errorf("initial NTP query against %s: %w", cfg.Host, err)
	}
	n.offset = off
	n.syncedAt = n.now()
	n.rate = measureRate(n.now().Add(off), cfg.LonDeg)
	logger.Info("NTP clock synchronized", "host", cfg.Host, "offset_ms", off.Milliseconds())
	return n, nil
}

func (n *NTP) Sample(_ context.Context) (Sample, error) {
	if n.now().Sub(n.syncedAt) > n.resync {
		n.refresh()
	}
	t := n.now().Add(n.offset)
	return Sample{LSTDeg: lstDeg(t, n.lonDeg), At: t}, nil
}

// refresh re-queries the server. On failure the previous offset stays in
// force and syncedAt advances anyway so an unreachable server is retried
// once per interval, not once per tick.
func (n *NTP) refresh() {
	off, err := n.query(n.host, n.timeout)
	n.syncedAt = n.now()
	if err != nil {
		if !n.warned {
			n.warned = true
			n.logger.Warn("NTP resync failed, keeping previous offset", "host", n.host, "error", err)
		}
		return
	}
	n.offset = off
	n.warned = false
	n.logger.Debug("NTP offset refreshed", "host", n.host, "offset_ms", off.Milliseconds())
}

func (n *NTP) RateDegPerSec() float64 { return n.rate }
