// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"time"

	"github.com/relabs-tech/optical_ruler/internal/calibration"
	"github.com/relabs-tech/optical_ruler/internal/config"
	"github.com/relabs-tech/optical_ruler/internal/logging"
)

// RunConsole drives the configured frame source into a local estimator
// and prints diagnostic lines. No broker required; useful for checking
// the pipeline end to end on a laptop.
func RunConsole() error {
	cfg := config.Get()

	src, err := NewFrameSource(cfg)
	if err != nil {
		return err
	}
	est := calibration.NewEstimator(cfg.EstimatorParams())
	logging.S().Infof("local console running (%s source), printing every %d ms", cfg.Source, cfg.ConsoleLogInterval)

	ticker := time.NewTicker(time.Duration(cfg.FrameInterval) * time.Millisecond)
	defer ticker.Stop()

	logEvery := time.Duration(cfg.ConsoleLogInterval) * time.Millisecond
	var lastLine time.Time

	for t := range ticker.C {
		frame, err := src.Next()
		if err != nil {
			return err
		}
		if !frame.Tracked {
			est.Reset()
			continue
		}
		est.Ingest(frame)

		if t.Sub(lastLine) < logEvery {
			continue
		}
		lastLine = t

		d := est.Diagnostics()
		fmt.Printf(
			"[POOL] size=%3d recent=%3d  x=%7.4f y=%7.4f  wx=%8.1f wy=%8.1f  px=%5d\n",
			d.PoolSize, d.RecentCount,
			d.LastMMPerPixelX, d.LastMMPerPixelY,
			d.LastWeightX, d.LastWeightY,
			d.Counts.EvaluatedPixels,
		)
	}
	return nil
}
