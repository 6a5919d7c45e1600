package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Logic-Beach/celestial-musicbox/internal/catalog"
)

// catgen builds a star catalog JSON from the HYG database, ready for the
// musicbox daemon. The HYG archive is downloaded next to the output file
// unless MUSICBOX_HYG_PATH points at a local copy.
func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	outPath := os.Getenv("MUSICBOX_CATALOG_OUT")
	if outPath == "" {
		outPath = filepath.Join("data", "star_catalog.json")
	}

	maxMag := 8.0
	if v := os.Getenv("MUSICBOX_MAX_MAG"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			fmt.Println("ERROR: MUSICBOX_MAX_MAG must be a number:", v)
			os.Exit(1)
		}
		maxMag = f
	}

	// Latitude is optional here: without it the catalog keeps the whole sky
	// and the daemon filters at load time.
	var lat *float64
	if v := os.Getenv("MUSICBOX_LATITUDE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < -90 || f > 90 {
			fmt.Println("ERROR: MUSICBOX_LATITUDE must be a number in [-90, 90]:", v)
			os.Exit(1)
		}
		lat = &f
	}

	hygPath := os.Getenv("MUSICBOX_HYG_PATH")
	if hygPath == "" {
		hygPath = filepath.Join(filepath.Dir(outPath), "hygdata_v42.csv.gz")
		if _, err := os.Stat(hygPath); err != nil {
			fmt.Println("Downloading HYG catalog (may take a moment)...")
			if err := download(catalog.HYGURL, hygPath); err != nil {
				fmt.Println("ERROR downloading HYG catalog:", err)
				os.Exit(1)
			}
		}
	}

	f, err := os.Open(hygPath)
	if err != nil {
		fmt.Println("ERROR opening HYG catalog:", err)
		os.Exit(1)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(hygPath, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			fmt.Println("ERROR reading HYG archive:", err)
			os.Exit(1)
		}
		defer gz.Close()
		r = gz
	}

	supplement, err := catalog.LoadSupplement(os.Getenv("MUSICBOX_SUPPLEMENT"), logger)
	if err != nil {
		fmt.Println("ERROR loading supplement:", err)
		os.Exit(1)
	}

	stars, err := catalog.ParseHYG(r, catalog.HYGOptions{
		MaxMag:      maxMag,
		LatitudeDeg: lat,
		Supplement:  supplement,
	}, logger)
	if err != nil {
		fmt.Println("ERROR parsing HYG catalog:", err)
		os.Exit(1)
	}

	data, err := json.MarshalIndent(stars, "", "  ")
	if err != nil {
		fmt.Println("ERROR encoding catalog:", err)
		os.Exit(1)
	}
	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Println("ERROR creating output directory:", err)
			os.Exit(1)
		}
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		fmt.Println("ERROR writing catalog:", err)
		os.Exit(1)
	}

	msg := fmt.Sprintf("Wrote %d stars to %s", len(stars), outPath)
	if lat != nil {
		lo := math.Max(-90, *lat-90)
		hi := math.Min(90, *lat+90)
		msg += fmt.Sprintf(" (dec [%.0f°, %.0f°] for lat %g°)", lo, hi, *lat)
	}
	fmt.Println(msg)
}

// download fetches url into dest via a temp file so an interrupted transfer
// never leaves a truncated archive behind.
func download(url, dest string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching HYG catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "hyg-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing HYG archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
