package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Logic-Beach/celestial-musicbox/internal/api"
	"github.com/Logic-Beach/celestial-musicbox/internal/astro"
	"github.com/Logic-Beach/celestial-musicbox/internal/auth"
	"github.com/Logic-Beach/celestial-musicbox/internal/catalog"
	"github.com/Logic-Beach/celestial-musicbox/internal/display"
	"github.com/Logic-Beach/celestial-musicbox/internal/midiout"
	"github.com/Logic-Beach/celestial-musicbox/internal/scheduler"
	"github.com/Logic-Beach/celestial-musicbox/internal/sidereal"
	"github.com/Logic-Beach/celestial-musicbox/internal/stellarium"
	"github.com/Logic-Beach/celestial-musicbox/internal/stream"
)

// observer is the site the daemon listens to the sky from.
type observer struct {
	LatDeg float64
	LonDeg float64
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	logger := newLogger()

	addr := os.Getenv("MUSICBOX_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	obs, err := loadObserver()
	if err != nil {
		logger.Error("invalid observer configuration", "error", err)
		os.Exit(1)
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	stars, err := catalog.Load(loadCatalogConfig(obs), logger)
	if err != nil {
		logger.Error("cannot load star catalog", "error", err)
		os.Exit(1)
	}

	source, err := loadTimeSource(logger, obs)
	if err != nil {
		logger.Error("cannot start time source", "error", err)
		os.Exit(1)
	}

	quiet := false
	if v := os.Getenv("MUSICBOX_QUIET"); v != "" {
		q, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid MUSICBOX_QUIET value, defaulting to false", "value", v)
		} else {
			quiet = q
		}
	}

	// The SSE broadcaster is always wired; the terminal block, Stellarium and
	// MIDI join it depending on configuration. Order matters: the block
	// prints, the planetarium slews, then the chord rings.
	events := stream.NewBroadcaster(logger)
	sinks := []scheduler.Sink{events}

	if !quiet {
		sinks = append(sinks, display.NewTerminal(os.Stdout))
	}

	if url := os.Getenv("MUSICBOX_STELLARIUM_URL"); url != "" {
		logger.Info("stellarium slewing enabled", "url", url)
		sinks = append(sinks, stellarium.New(url, logger))
	}

	midiCfg := loadMIDIConfig(logger)
	if midiCfg.Enabled {
		out, err := midiout.Open(midiCfg.Port, midiCfg.NoteDuration, logger)
		if err != nil {
			logger.Error("cannot open MIDI output", "error", err)
			os.Exit(1)
		}
		defer midiout.Close()
		sinks = append(sinks, out)
	}

	status := scheduler.NewStatusStore()
	loop, err := scheduler.New(
		loadSchedulerConfig(logger, obs),
		source,
		stars,
		scheduler.NewMultiSink(logger, sinks...),
		status,
		logger,
	)
	if err != nil {
		logger.Error("invalid scheduler configuration", "error", err)
		os.Exit(1)
	}

	streamHandler := stream.NewHandler(events, status, loadStreamConfig(logger), logger)
	srv := api.NewServer(addr, logger, authCfg, api.Deps{
		Status: status,
		Stars:  stars,
		Stream: streamHandler,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler failed", "error", err)
			os.Exit(1)
		}
	}()

	// Between transits, a live countdown on the terminal. Only when stdout is
	// one; piped output would fill with carriage returns.
	if !quiet && stdoutIsTerminal() {
		go display.Countdown(ctx, status, os.Stdout)
	}

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "stars", len(stars))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("stopped")
}

func stdoutIsTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func newLogger() *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(os.Getenv("MUSICBOX_LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	// Logs go to stderr so the terminal visualizer owns stdout.
	var h slog.Handler
	if strings.ToLower(os.Getenv("MUSICBOX_LOG_FORMAT")) == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(h)
}

// loadObserver reads the site coordinates. Both are required: every angle in
// the system is meaningless without them, so absence is fatal rather than
// defaulted.
func loadObserver() (observer, error) {
	obs := observer{}

	latStr := os.Getenv("MUSICBOX_LATITUDE")
	if latStr == "" {
		return obs, errors.New("MUSICBOX_LATITUDE is required (observer latitude, degrees)")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return obs, errors.New("MUSICBOX_LATITUDE must be a number in [-90, 90]")
	}
	obs.LatDeg = lat

	lonStr := os.Getenv("MUSICBOX_LONGITUDE")
	if lonStr == "" {
		return obs, errors.New("MUSICBOX_LONGITUDE is required (observer longitude, degrees east positive)")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || lon < -180 || lon > 360 {
		return obs, errors.New("MUSICBOX_LONGITUDE must be a number in [-180, 360]")
	}
	obs.LonDeg = lon

	return obs, nil
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("MUSICBOX_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("MUSICBOX_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("MUSICBOX_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("MUSICBOX_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadCatalogConfig(obs observer) catalog.Config {
	cfg := catalog.Config{
		Path:           os.Getenv("MUSICBOX_CATALOG"),
		SupplementPath: os.Getenv("MUSICBOX_SUPPLEMENT"),
		LatitudeDeg:    obs.LatDeg,
		RAUnit:         catalog.RAUnitAuto,
	}
	if v := os.Getenv("MUSICBOX_RA_UNIT"); v != "" {
		cfg.RAUnit = catalog.RAUnit(v)
	}
	return cfg
}

func loadTimeSource(logger *slog.Logger, obs observer) (sidereal.Source, error) {
	kind := strings.ToLower(os.Getenv("MUSICBOX_TIME_SOURCE"))
	switch kind {
	case "", "local":
		return sidereal.NewLocal(obs.LonDeg), nil
	case "ntp":
	default:
		logger.Warn("unknown MUSICBOX_TIME_SOURCE value, using local clock", "value", kind)
		return sidereal.NewLocal(obs.LonDeg), nil
	}

	cfg := sidereal.NTPConfig{
		Host:   "pool.ntp.org",
		LonDeg: obs.LonDeg,
	}

	if v := os.Getenv("MUSICBOX_NTP_HOST"); v != "" {
		cfg.Host = v
	}

	if v := os.Getenv("MUSICBOX_NTP_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid MUSICBOX_NTP_TIMEOUT value, using default", "value", v, "default", 5)
		} else {
			cfg.Timeout = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("MUSICBOX_NTP_RESYNC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid MUSICBOX_NTP_RESYNC value, using default", "value", v, "default", 3600)
		} else {
			cfg.Resync = time.Duration(n) * time.Second
		}
	}

	return sidereal.NewNTP(cfg, logger)
}

func loadSchedulerConfig(logger *slog.Logger, obs observer) scheduler.Config {
	cfg := scheduler.Config{
		PollInterval:       500 * time.Millisecond,
		CrossingWindowDeg:  0.5,
		CooldownFraction:   0.98,
		SiderealDaySeconds: astro.SiderealDaySeconds,
		UpcomingCount:      5,
		DisplayEvery:       2,
		LatitudeDeg:        obs.LatDeg,
	}

	if v := os.Getenv("MUSICBOX_POLL_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid MUSICBOX_POLL_INTERVAL_MS value, using default", "value", v, "default", 500)
		} else {
			cfg.PollInterval = time.Duration(n) * time.Millisecond
		}
	}

	if v := os.Getenv("MUSICBOX_CROSSING_WINDOW_DEG"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			logger.Warn("invalid MUSICBOX_CROSSING_WINDOW_DEG value, using default", "value", v, "default", 0.5)
		} else {
			cfg.CrossingWindowDeg = f
		}
	}

	if v := os.Getenv("MUSICBOX_COOLDOWN_FRACTION"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f >= 1 {
			logger.Warn("invalid MUSICBOX_COOLDOWN_FRACTION value, using default", "value", v, "default", 0.98)
		} else {
			cfg.CooldownFraction = f
		}
	}

	if v := os.Getenv("MUSICBOX_SIDEREAL_DAY_SECONDS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			logger.Warn("invalid MUSICBOX_SIDEREAL_DAY_SECONDS value, using default", "value", v, "default", astro.SiderealDaySeconds)
		} else {
			cfg.SiderealDaySeconds = f
		}
	}

	if v := os.Getenv("MUSICBOX_UPCOMING_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid MUSICBOX_UPCOMING_COUNT value, using default", "value", v, "default", 5)
		} else {
			cfg.UpcomingCount = n
		}
	}

	if v := os.Getenv("MUSICBOX_DISPLAY_EVERY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid MUSICBOX_DISPLAY_EVERY value, using default", "value", v, "default", 2)
		} else {
			cfg.DisplayEvery = n
		}
	}

	logger.Info("scheduler config",
		"poll_interval_ms", cfg.PollInterval.Milliseconds(),
		"crossing_window_deg", cfg.CrossingWindowDeg,
		"cooldown_fraction", cfg.CooldownFraction,
		"upcoming_count", cfg.UpcomingCount,
	)

	return cfg
}

type midiConfig struct {
	Enabled      bool
	Port         string
	NoteDuration time.Duration
}

func loadMIDIConfig(logger *slog.Logger) midiConfig {
	cfg := midiConfig{
		Enabled:      true,
		Port:         os.Getenv("MUSICBOX_MIDI_PORT"),
		NoteDuration: midiout.DefaultNoteDuration,
	}

	if v := os.Getenv("MUSICBOX_MIDI_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid MUSICBOX_MIDI_ENABLED value, defaulting to true", "value", v)
		} else {
			cfg.Enabled = enabled
		}
	}

	if v := os.Getenv("MUSICBOX_NOTE_DURATION_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid MUSICBOX_NOTE_DURATION_MS value, using default", "value", v, "default", 600)
		} else {
			cfg.NoteDuration = time.Duration(n) * time.Millisecond
		}
	}

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		MaxConcurrent:      200,
		KeepaliveInterval:  30 * time.Second,
	}

	if v := os.Getenv("MUSICBOX_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid MUSICBOX_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("MUSICBOX_STREAM_MAX_TOTAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid MUSICBOX_STREAM_MAX_TOTAL value, using default", "value", v, "default", 200)
		} else {
			cfg.MaxConcurrent = n
		}
	}

	if v := os.Getenv("MUSICBOX_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid MUSICBOX_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("MUSICBOX_STREAM_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid MUSICBOX_STREAM_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	return cfg
}
