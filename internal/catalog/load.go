package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// RAUnit says how right ascension is expressed in a catalog file.
type RAUnit string

const (
	// RAUnitAuto applies the historical heuristic: when no entry exceeds 24
	// the values are treated as hours. A sparse all-low-RA degree catalog
	// would be misread under auto; prefer an explicit unit for such files.
	RAUnitAuto    RAUnit = "auto"
	RAUnitHours   RAUnit = "hours"
	RAUnitDegrees RAUnit = "degrees"
)

// Config controls catalog loading and filtering.
type Config struct {
	Path           string  // catalog JSON; empty selects the embedded bright-star set
	SupplementPath string  // optional per-star overrides, keyed by name
	LatitudeDeg    float64 // observer latitude for the can-ever-transit filter
	RAUnit         RAUnit  // empty means RAUnitAuto
}

// Supplement carries hand-curated per-star data merged over catalog entries:
// mass and distance override, spectral type fills a gap only.
type Supplement struct {
	MassSolar  *float64 `json:"mass"`
	Spectral   string   `json:"spectral"`
	DistanceLY *float64 `json:"distance_ly"`
}

// rawStar mirrors Star with pointer coordinates so missing fields are
// distinguishable from zero during validation.
type rawStar struct {
	Name       string   `json:"name"`
	RADeg      *float64 `json:"ra_deg"`
	DecDeg     *float64 `json:"dec_deg"`
	VMag       *float64 `json:"vmag"`
	Spectral   string   `json:"spectral"`
	BV         *float64 `json:"bv"`
	DistanceLY *float64 `json:"distance_ly"`
	MassSolar  *float64 `json:"mass"`
	HIP        int      `json:"hip"`
	HD         int      `json:"hd"`
	HR         int      `json:"hr"`
}

// defaultVMag stands in for entries without a magnitude.
const defaultVMag = 5.0

// Load reads, validates, scales and filters a catalog. The returned slice is
// what the scheduler runs against for the whole process lifetime; an empty
// result is an error because the loop would have nothing to ever fire.
func Load(cfg Config, logger *slog.Logger) ([]Star, error) {
	var data []byte
	if cfg.Path == "" {
		data = brightStarsJSON
		logger.Info("no catalog path configured, using embedded bright-star catalog")
	} else {
		var err error
		data, err = os.ReadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("reading catalog: %w", err)
		}
	}

	supplement, err := LoadSupplement(cfg.SupplementPath, logger)
	if err != nil {
		return nil, err
	}

	stars, err := Parse(bytes.NewReader(data), cfg, supplement, logger)
	if err != nil {
		return nil, err
	}
	if len(stars) == 0 {
		return nil, fmt.Errorf("catalog is empty after validation and latitude filtering (lat %.2f); nothing can ever transit", cfg.LatitudeDeg)
	}
	logger.Info("catalog loaded", "stars", len(stars), "latitude", cfg.LatitudeDeg)
	return stars, nil
}

// LoadSupplement reads the optional supplement file. An empty path returns
// an empty map rather than an error.
func LoadSupplement(path string, logger *slog.Logger) (map[string]Supplement, error) {
	if path == "" {
		return map[string]Supplement{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading supplement: %w", err)
	}
	var sup map[string]Supplement
	if err := json.Unmarshal(data, &sup); err != nil {
		return nil, fmt.Errorf("decoding supplement: %w", err)
	}
	logger.Info("supplement loaded", "entries", len(sup))
	return sup, nil
}

// Parse decodes a catalog JSON array and applies, in order: validity checks,
// the RA unit decision, the latitude filter and the supplement merge.
// Malformed entries are dropped with a warning instead of failing the load;
// a catalog is useful even when a few rows are broken.
func Parse(r io.Reader, cfg Config, supplement map[string]Supplement, logger *slog.Logger) ([]Star, error) {
	var raw []rawStar
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}

	// First pass: validity only. The unit heuristic must see every usable RA
	// before any scaling decision is made.
	usable := make([]rawStar, 0, len(raw))
	dropped := 0
	maxRA := 0.0
	for _, rs := range raw {
		if rs.Name == "" || rs.RADeg == nil || rs.DecDeg == nil {
			dropped++
			continue
		}
		if *rs.DecDeg < -90.0 || *rs.DecDeg > 90.0 {
			dropped++
			continue
		}
		usable = append(usable, rs)
		if *rs.RADeg > maxRA {
			maxRA = *rs.RADeg
		}
	}
	if dropped > 0 {
		logger.Warn("dropped malformed catalog entries", "count", dropped)
	}

	scale := 1.0
	unit := cfg.RAUnit
	if unit == "" {
		unit = RAUnitAuto
	}
	switch unit {
	case RAUnitDegrees:
	case RAUnitHours:
		scale = 15.0
	case RAUnitAuto:
		if len(usable) > 0 && maxRA <= 24.0 {
			scale = 15.0
			logger.Info("catalog RA values fit in hours, scaling to degrees", "max_ra", maxRA)
		}
	default:
		return nil, fmt.Errorf("unknown RA unit %q", cfg.RAUnit)
	}

	stars := make([]Star, 0, len(usable))
	seen := make(map[string]bool, len(usable))
	filtered := 0
	for _, rs := range usable {
		if !CanEverTransit(*rs.DecDeg, cfg.LatitudeDeg) {
			filtered++
			continue
		}
		if seen[rs.Name] {
			logger.Warn("dropped duplicate catalog entry", "name", rs.Name)
			continue
		}
		seen[rs.Name] = true

		s := Star{
			Name:       rs.Name,
			RADeg:      *rs.RADeg * scale,
			DecDeg:     *rs.DecDeg,
			VMag:       defaultVMag,
			Spectral:   rs.Spectral,
			BV:         rs.BV,
			DistanceLY: rs.DistanceLY,
			MassSolar:  rs.MassSolar,
			HIP:        rs.HIP,
			HD:         rs.HD,
			HR:         rs.HR,
		}
		if rs.VMag != nil {
			s.VMag = *rs.VMag
		}
		applySupplement(&s, supplement)
		stars = append(stars, s)
	}
	if filtered > 0 {
		logger.Info("filtered stars that never rise to the meridian", "count", filtered)
	}
	return stars, nil
}

// applySupplement merges curated data over one entry. Mass and distance
// override the catalog; spectral type only fills an empty field.
func applySupplement(s *Star, supplement map[string]Supplement) {
	sup, ok := supplement[s.Name]
	if !ok {
		return
	}
	if sup.MassSolar != nil {
		s.MassSolar = sup.MassSolar
	}
	if sup.Spectral != "" && s.Spectral == "" {
		s.Spectral = sup.Spectral
	}
	if sup.DistanceLY != nil {
		s.DistanceLY = sup.DistanceLY
	}
}
