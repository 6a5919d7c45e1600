package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Logic-Beach/celestial-musicbox/internal/catalog"
	"github.com/Logic-Beach/celestial-musicbox/internal/scheduler"
	"github.com/Logic-Beach/celestial-musicbox/internal/transit"
)

// maxUpcoming caps the n query parameter; the snapshot never carries more
// anyway.
const maxUpcoming = 50

type upcomingResponse struct {
	LSTDeg   float64            `json:"lst_deg"`
	At       time.Time          `json:"at"`
	Upcoming []transit.Approach `json:"upcoming"`
}

type catalogResponse struct {
	Count int            `json:"count"`
	Stars []catalog.Star `json:"stars"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// statusHandler serves the latest loop snapshot.
// GET /api/v1/status
func statusHandler(status *scheduler.StatusStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := status.Get()
		if snap == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// upcomingHandler serves the next approaching stars from the snapshot.
// GET /api/v1/upcoming?n=5
func upcomingHandler(status *scheduler.StatusStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := status.Get()
		if snap == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
			return
		}

		n := len(snap.Upcoming)
		if v := r.URL.Query().Get("n"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 || parsed > maxUpcoming {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error": "invalid n parameter, must be 1-50",
					"max":   maxUpcoming,
				})
				return
			}
			if parsed < n {
				n = parsed
			}
		}

		writeJSON(w, http.StatusOK, upcomingResponse{
			LSTDeg:   snap.LSTDeg,
			At:       snap.At,
			Upcoming: snap.Upcoming[:n],
		})
	}
}

// catalogHandler serves the loaded catalog.
// GET /api/v1/catalog
func catalogHandler(stars []catalog.Star) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, catalogResponse{Count: len(stars), Stars: stars})
	}
}
