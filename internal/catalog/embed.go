package catalog

import _ "embed"

// brightStarsJSON is the fallback catalog: fifty of the brightest stars with
// J2000 coordinates, color indices and distances, so the daemon makes sound
// out of the box before anyone runs catgen.
//
//go:embed data/bright_stars.json
var brightStarsJSON []byte
