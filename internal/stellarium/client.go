// Package stellarium drives a running Stellarium instance over its Remote
// Control plugin: each fired transit slews the view to the star's J2000
// coordinates and selects the object by name when the search finds it.
//
// Requires Stellarium running with the Remote Control plugin enabled
// (default port 8090). All failures are non-fatal; the view is decoration.
package stellarium

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Logic-Beach/celestial-musicbox/internal/catalog"
	"github.com/Logic-Beach/celestial-musicbox/internal/scheduler"
)

// DefaultBaseURL is the Remote Control plugin's default listen address.
const DefaultBaseURL = "http://localhost:8090"

// Client is an action sink that points Stellarium at each fired star.
type Client struct {
	baseURL    string
	mode       string
	httpClient *http.Client
	logger     *slog.Logger

	// warned dedupes the connectivity hint: one line per client instance,
	// not one per transit. Cleared when Stellarium answers again.
	warned bool
}

// New creates a client for the Remote Control API. An empty baseURL targets
// the default local instance.
func New(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		mode:       "mark",
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

// Name identifies the sink in logs and metrics.
func (c *Client) Name() string { return "stellarium" }

// Fire slews the view to the fired star, then tries to select it by name.
// Selection is best effort; only the slew failure is reported.
func (c *Client) Fire(ctx context.Context, ev scheduler.Event) error {
	if err := c.setView(ctx, ev.Star.RADeg, ev.Star.DecDeg); err != nil {
		if !c.warned {
			c.warned = true
			c.logger.Warn("stellarium unreachable, is the Remote Control plugin running?",
				"base_url", c.baseURL,
				"error", err,
			)
		}
		return err
	}
	c.warned = false
	c.focusFirst(ctx, candidates(ev.Star))
	return nil
}

// j2000Vector converts RA/Dec degrees to the unit vector the view API takes.
func j2000Vector(raDeg, decDeg float64) [3]float64 {
	ra := raDeg * math.Pi / 180.0
	dec := decDeg * math.Pi / 180.0
	return [3]float64{
		math.Cos(dec) * math.Cos(ra),
		math.Cos(dec) * math.Sin(ra),
		math.Sin(dec),
	}
}

// setView POSTs /api/main/view. The slew is instant, no animation.
func (c *Client) setView(ctx context.Context, raDeg, decDeg float64) error {
	vec, err := json.Marshal(j2000Vector(raDeg, decDeg))
	if err != nil {
		return fmt.Errorf("marshal j2000 vector: %w", err)
	}
	return c.postForm(ctx, "/api/main/view", url.Values{"j2000": {string(vec)}})
}

// focusFirst walks the candidate names and selects the first one Stellarium
// recognizes. Search matches are preferred; the raw query is the fallback
// when the search comes back empty.
func (c *Client) focusFirst(ctx context.Context, queries []string) {
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		matches := c.findObjects(ctx, q)
		for _, m := range matches {
			if m != "" && c.focus(ctx, m) {
				return
			}
		}
		if len(matches) == 0 && c.focus(ctx, q) {
			return
		}
	}
}

// findObjects GETs /api/objects/find. Errors collapse to an empty result.
func (c *Client) findObjects(ctx context.Context, query string) []string {
	u := c.baseURL + "/api/objects/find?" + url.Values{"str": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil
	}
	return names
}

func (c *Client) focus(ctx context.Context, target string) bool {
	return c.postForm(ctx, "/api/main/focus", url.Values{"target": {target}, "mode": {c.mode}}) == nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting %s: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, path)
	}
	return nil
}

// candidates lists the names Stellarium might know a star by: proper name
// first, then catalog designations.
func candidates(s catalog.Star) []string {
	out := []string{s.Name}
	if s.HIP > 0 {
		out = append(out, "HIP "+strconv.Itoa(s.HIP))
	}
	if s.HD > 0 {
		out = append(out, "HD "+strconv.Itoa(s.HD))
	}
	if s.HR > 0 {
		out = append(out, "HR "+strconv.Itoa(s.HR))
	}
	return out
}
