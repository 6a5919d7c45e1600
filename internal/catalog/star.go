// Package catalog loads, validates and filters the star catalog the
// scheduler runs against. Catalogs are JSON arrays; the layout matches what
// the catgen tool emits from the HYG database.
package catalog

// Star is one catalog entry. Name doubles as the cooldown key, so it must be
// unique within a run; the loader drops duplicates. RADeg and DecDeg are
// J2000 coordinates in degrees. The remaining fields are carried through to
// the action sinks untouched; pointer fields distinguish "absent" from
// zero, which matters for the sound mapping defaults.
type Star struct {
	Name       string   `json:"name"`
	RADeg      float64  `json:"ra_deg"`
	DecDeg     float64  `json:"dec_deg"`
	VMag       float64  `json:"vmag"`
	Spectral   string   `json:"spectral,omitempty"`
	BV         *float64 `json:"bv,omitempty"`
	DistanceLY *float64 `json:"distance_ly,omitempty"`
	MassSolar  *float64 `json:"mass,omitempty"`
	HIP        int      `json:"hip,omitempty"`
	HD         int      `json:"hd,omitempty"`
	HR         int      `json:"hr,omitempty"`
}

// CanEverTransit reports whether an object at decDeg crosses the meridian
// above the horizon for an observer at latDeg. Declinations outside
// [lat-90, lat+90] culminate below the horizon and are pointless to track.
func CanEverTransit(decDeg, latDeg float64) bool {
	return decDeg >= latDeg-90.0 && decDeg <= latDeg+90.0
}
