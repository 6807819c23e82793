// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/measure/main.go
//
// Guided eyewear measurement for this project.
// Phases:
//
//  1. Warmup: frames flow into the estimator until the sample pool has
//     something to say.
//  2. Capture: the pool fills at the configured frame rate while the
//     subject holds still.
//  3. Finalize: temporal fusion produces the calibration, a confidence
//     report is printed, and marker positions (when provided) are
//     converted into millimeter metrics and stored.
//
// Output:
//
//	Writes a JSON result file next to the binary and records finished
//	measurements in the local SQLite database.
//
// Run:
//
//	go run ./cmd/measure -markers markers.json
//
// Notes / assumptions:
//   - Frames come from the configured source (synthetic or replay).
//   - Marker coordinates are normalized against the crop configured by
//     CROP_WIDTH/CROP_HEIGHT; mixing crops silently skews millimeters.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/relabs-tech/optical_ruler/internal/app"
	"github.com/relabs-tech/optical_ruler/internal/calibration"
	"github.com/relabs-tech/optical_ruler/internal/config"
	"github.com/relabs-tech/optical_ruler/internal/depth"
	"github.com/relabs-tech/optical_ruler/internal/logging"
	"github.com/relabs-tech/optical_ruler/internal/measure"
	"github.com/relabs-tech/optical_ruler/internal/store"
)

const (
	warmupFrames  = 30 // frames fed before the user-visible capture
	captureFrames = 90 // one TTL-sized pool at ~30 fps and then some

	// Quality heuristics for the confidence report
	poolGood = 0.66 // pool fill ratio considered solid
	poolBad  = 0.10

	weightGood = 50.0 // axis weights comfortably above the pooling floor
	weightBad  = 5.0

	agreeGood = 0.02 // relative X/Y disagreement considered solid
	agreeBad  = 0.15

	confFloor = 0.05 // never report zero confidence; the phase did run
)

// ---------- Data model (JSON output) ----------

type ConfidenceReport struct {
	Pool      float64 `json:"pool"`
	Weights   float64 `json:"weights"`
	Agreement float64 `json:"axis_agreement"`
	Overall   float64 `json:"overall"`
}

type MeasurementResult struct {
	SchemaVersion int    `json:"schema_version"`
	MeasuredAt    string `json:"measured_at"` // RFC3339
	Source        string `json:"source"`

	Calibration calibration.Calibration `json:"calibration"`
	Reliable    bool                    `json:"reliable"`

	CropWidth  int `json:"crop_width"`
	CropHeight int `json:"crop_height"`

	Confidence  ConfidenceReport        `json:"confidence"`
	Diagnostics calibration.Diagnostics `json:"diagnostics"`

	Metrics *measure.Metrics `json:"metrics,omitempty"`

	Notes []string `json:"notes,omitempty"`
}

// ---------- Main flow ----------

func main() {
	in := bufio.NewReader(os.Stdin)

	configPath := flag.String("config", "./optical_config.txt", "path to configuration file")
	markersPath := flag.String("markers", "", "path to a markers JSON file (optional)")
	yes := flag.Bool("yes", false, "skip interactive prompts")
	flag.Parse()

	fmt.Println("=== Guided Eyewear Measurement ===")
	fmt.Println("Captures depth frames, fuses a calibration and converts markers to millimeters.")
	fmt.Println()

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	cfg := config.Get()
	if err := logging.Init(cfg.LogMode); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to init logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	src, err := app.NewFrameSource(cfg)
	if err != nil {
		fatal(err)
	}
	est := calibration.NewEstimator(cfg.EstimatorParams())

	res := MeasurementResult{
		SchemaVersion: 1,
		MeasuredAt:    time.Now().Format(time.RFC3339),
		Source:        cfg.Source,
		CropWidth:     cfg.CropWidth,
		CropHeight:    cfg.CropHeight,
	}

	period := time.Duration(cfg.FrameInterval) * time.Millisecond

	// ---------------- Step 1: Warmup ----------------
	fmt.Println("Step 1/3 — Warmup")
	fmt.Println("Hold the subject steady, roughly 25-40 cm from the sensor.")
	if !*yes {
		waitEnter(in, "Press ENTER to start warmup...")
	}

	lastFrame, dropped := runPhase(src, est, warmupFrames, period)
	d := est.Diagnostics()
	fmt.Printf("Warmup done: pool=%d recent=%d dropped=%d\n", d.PoolSize, d.RecentCount, dropped)

	// ---------------- Step 2: Capture ----------------
	fmt.Println()
	fmt.Println("Step 2/3 — Capture")
	fmt.Println("Keep still. The pool fills for a few seconds.")
	if !*yes {
		waitEnter(in, "Press ENTER to start capture...")
	}

	lastFrame, dropped = runPhase(src, est, captureFrames, period)
	d = est.Diagnostics()
	if dropped > 0 {
		res.Notes = append(res.Notes, fmt.Sprintf("dropped_frames: %d", dropped))
	}
	fmt.Printf("Capture done: pool=%d recent=%d dropped=%d\n", d.PoolSize, d.RecentCount, dropped)

	// ---------------- Step 3: Finalize ----------------
	fmt.Println()
	fmt.Println("Step 3/3 — Finalize")
	if lastFrame == nil {
		fatal(errors.New("no frames captured"))
	}

	cal, err := est.Finalize(*lastFrame, cfg.CropWidth, cfg.CropHeight)
	if err != nil {
		fmt.Printf("Temporal fusion failed (%v), falling back to instant estimate\n", err)
		res.Notes = append(res.Notes, "fallback: instant estimate")
		cal, err = est.InstantEstimate(*lastFrame, cfg.CropWidth, cfg.CropHeight)
		if err != nil {
			fatal(err)
		}
	}
	res.Calibration = cal
	res.Reliable = cal.IsReliable()
	res.Diagnostics = est.Diagnostics()

	res.Confidence.Pool = poolConfidence(res.Diagnostics, cfg.PoolMaxSamples)
	res.Confidence.Weights = weightConfidence(res.Diagnostics)
	res.Confidence.Agreement = agreementConfidence(res.Diagnostics)
	res.Confidence.Overall = overallConfidence(res.Confidence)

	fmt.Printf("Calibration: h=%.2f mm v=%.2f mm (reliable=%v)\n",
		cal.HorizontalReferenceMM, cal.VerticalReferenceMM, res.Reliable)
	fmt.Printf("Confidence: pool=%.2f weights=%.2f agreement=%.2f overall=%.2f\n",
		res.Confidence.Pool, res.Confidence.Weights, res.Confidence.Agreement, res.Confidence.Overall)

	// ---------------- Markers → metrics ----------------
	if *markersPath != "" {
		markers, err := loadMarkers(*markersPath)
		if err != nil {
			fatal(err)
		}
		metrics, err := measure.Compute(markers.Right, markers.Left, markers.Central, calibration.NewScale(cal))
		if err != nil {
			fatal(err)
		}
		res.Metrics = &metrics
		printMetrics(metrics)

		markersJSON, err := json.Marshal(markers)
		if err != nil {
			fatal(err)
		}
		st, err := store.Open(cfg.StorePath)
		if err != nil {
			fatal(err)
		}
		defer st.Close()
		rec, err := st.SaveMeasurement(store.Record{
			Calibration: cal,
			Metrics:     metrics,
			MarkersJSON: string(markersJSON),
		})
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Stored measurement %s in %s\n", rec.ID, cfg.StorePath)
	}

	if err := writeResult(res); err != nil {
		fatal(err)
	}

	fmt.Println()
	fmt.Println("Measurement complete.")
	fmt.Printf("Overall confidence: %.2f\n", res.Confidence.Overall)
}

// runPhase feeds n frames into the estimator at the configured rate and
// returns the last tracked frame plus the count of dropped frames.
func runPhase(src depth.FrameSource, est *calibration.Estimator, n int, period time.Duration) (*depth.Frame, int) {
	var last *depth.Frame
	dropped := 0
	for i := 0; i < n; i++ {
		frame, err := src.Next()
		if err != nil {
			dropped++
			continue
		}
		if !frame.Tracked {
			est.Reset()
			dropped++
			continue
		}
		est.Ingest(frame)
		f := frame
		last = &f

		if (i+1)%10 == 0 {
			d := est.Diagnostics()
			fmt.Printf("  %3d/%d frames | pool=%2d | x=%.4f y=%.4f mm/px\n",
				i+1, n, d.PoolSize, d.LastMMPerPixelX, d.LastMMPerPixelY)
		}
		time.Sleep(period)
	}
	return last, dropped
}

// ---------- Confidence heuristics ----------

// poolConfidence rewards a pool that actually filled during capture.
func poolConfidence(d calibration.Diagnostics, maxSamples int) float64 {
	if maxSamples <= 0 {
		return confFloor
	}
	fill := float64(d.RecentCount) / float64(maxSamples)
	switch {
	case fill >= poolGood:
		return 1.0
	case fill <= poolBad:
		return confFloor
	default:
		t := (fill - poolBad) / (poolGood - poolBad)
		return clamp01(confFloor + (1.0-confFloor)*t)
	}
}

// weightConfidence looks at the weaker of the two axis weights.
func weightConfidence(d calibration.Diagnostics) float64 {
	w := math.Min(d.LastWeightX, d.LastWeightY)
	switch {
	case w >= weightGood:
		return 1.0
	case w <= weightBad:
		return confFloor
	default:
		t := (w - weightBad) / (weightGood - weightBad)
		return clamp01(confFloor + (1.0-confFloor)*t)
	}
}

// agreementConfidence rewards the two axes telling the same story; on a
// roughly frontal face the horizontal and vertical scales land close.
func agreementConfidence(d calibration.Diagnostics) float64 {
	if d.LastMMPerPixelX <= 0 || d.LastMMPerPixelY <= 0 {
		return confFloor
	}
	rel := math.Abs(d.LastMMPerPixelX-d.LastMMPerPixelY) / d.LastMMPerPixelX
	switch {
	case rel <= agreeGood:
		return 1.0
	case rel >= agreeBad:
		return confFloor
	default:
		t := (rel - agreeGood) / (agreeBad - agreeGood)
		return clamp01(1.0 - (1.0-confFloor)*t)
	}
}

func overallConfidence(c ConfidenceReport) float64 {
	// Weighted: pool depth matters most, axis agreement is a sanity term.
	const wPool, wWeights, wAgree = 0.40, 0.35, 0.25
	return clamp01(wPool*c.Pool + wWeights*c.Weights + wAgree*c.Agreement)
}

// ---------- I/O helpers ----------

func loadMarkers(path string) (measure.Markers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return measure.Markers{}, fmt.Errorf("read markers file: %w", err)
	}
	var m measure.Markers
	if err := json.Unmarshal(data, &m); err != nil {
		return measure.Markers{}, fmt.Errorf("parse markers file: %w", err)
	}
	return m, nil
}

func printMetrics(m measure.Metrics) {
	fmt.Println()
	fmt.Println("Measurements (mm):")
	fmt.Printf("              %8s %8s\n", "right", "left")
	fmt.Printf("  width       %8.1f %8.1f\n", m.Right.WidthMM, m.Left.WidthMM)
	fmt.Printf("  height      %8.1f %8.1f\n", m.Right.HeightMM, m.Left.HeightMM)
	fmt.Printf("  dnp         %8.1f %8.1f\n", m.Right.DNPMM, m.Left.DNPMM)
	fmt.Printf("  pupil ht    %8.1f %8.1f\n", m.Right.PupilHeightMM, m.Left.PupilHeightMM)
	fmt.Printf("  bridge      %8.1f\n", m.BridgeMM)
}

func writeResult(res MeasurementResult) error {
	ts := time.Now().Format("2006-01-02T15-04-05Z07-00")
	name := fmt.Sprintf("%s_optical_measurement.json", ts)

	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(name, b, 0o644); err != nil {
		return err
	}
	fmt.Printf("\nWrote: %s\n", name)
	return nil
}

func waitEnter(in *bufio.Reader, prompt string) {
	fmt.Print(prompt)
	_, _ = in.ReadString('\n')
	fmt.Println()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
