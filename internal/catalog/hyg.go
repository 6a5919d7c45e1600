package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// HYGURL is where catgen fetches the HYG database archive from.
const HYGURL = "https://astronexus.com/downloads/catalogs/hygdata_v42.csv.gz"

// pcToLY converts parsecs to light-years.
const pcToLY = 1.0 / 0.306601

// HYGOptions controls the HYG conversion.
type HYGOptions struct {
	// MaxMag drops stars dimmer than this visual magnitude. Rows without a
	// magnitude are kept and assigned the default.
	MaxMag float64
	// LatitudeDeg, when set, keeps only stars that can ever rise to the
	// meridian at that latitude.
	LatitudeDeg *float64
	// Supplement merges curated per-star data the same way the loader does.
	Supplement map[string]Supplement
}

// ParseHYG converts HYG database CSV rows (v3/v4 layout) into catalog stars.
// HYG lists RA in hours; the output is always degrees. The Sun is skipped,
// as are rows without a usable designation or coordinates.
func ParseHYG(r io.Reader, opts HYGOptions, logger *slog.Logger) ([]Star, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading HYG header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{"ra", "dec", "mag"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("HYG header is missing the %q column", required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var stars []Star
	skipped := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading HYG row: %w", err)
		}

		mag := parseFloat(field(rec, "mag"))
		if mag != nil && *mag > opts.MaxMag {
			continue
		}
		name := hygName(
			field(rec, "proper"), field(rec, "bf"),
			field(rec, "hr"), field(rec, "hip"), field(rec, "hd"),
		)
		if name == "" || name == "Sol" {
			continue
		}
		raHours := parseFloat(field(rec, "ra"))
		dec := parseFloat(field(rec, "dec"))
		if raHours == nil || dec == nil {
			skipped++
			continue
		}
		if opts.LatitudeDeg != nil && !CanEverTransit(*dec, *opts.LatitudeDeg) {
			continue
		}

		s := Star{
			Name:     name,
			RADeg:    *raHours * 15.0,
			DecDeg:   *dec,
			VMag:     defaultVMag,
			Spectral: field(rec, "spect"),
			BV:       parseFloat(field(rec, "ci")),
			HIP:      hygID(field(rec, "hip")),
			HD:       hygID(field(rec, "hd")),
			HR:       hygID(field(rec, "hr")),
		}
		if mag != nil {
			s.VMag = *mag
		}
		if pc := parseFloat(field(rec, "dist")); pc != nil && *pc > 0 {
			ly := math.Round(*pc*pcToLY*100) / 100
			s.DistanceLY = &ly
		}
		applySupplement(&s, opts.Supplement)
		stars = append(stars, s)
	}
	if skipped > 0 {
		logger.Warn("skipped HYG rows without coordinates", "count", skipped)
	}
	return stars, nil
}

// hygName picks the best designation: proper name, then Bayer/Flamsteed,
// then HR, HIP and HD numbers. Without the numeric fallbacks most of the
// database would be anonymous and unusable as cooldown keys.
func hygName(proper, bf, hr, hip, hd string) string {
	if proper != "" {
		return proper
	}
	if bf != "" {
		return bf
	}
	if n := hygID(hr); n > 0 {
		return fmt.Sprintf("HR %d", n)
	}
	if n := hygID(hip); n > 0 {
		return fmt.Sprintf("HIP %d", n)
	}
	if n := hygID(hd); n > 0 {
		return fmt.Sprintf("HD %d", n)
	}
	return ""
}

// hygID parses a catalog number that may be formatted as a float.
func hygID(v string) int {
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0
	}
	return int(f)
}

// parseFloat returns nil for empty or unparseable values.
func parseFloat(v string) *float64 {
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}
