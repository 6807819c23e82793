// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"github.com/relabs-tech/optical_ruler/internal/logging"
	"github.com/relabs-tech/optical_ruler/internal/store"
)

const (
	recentMeasurementsDefault = 20
	recentMeasurementsMax     = 200
)

// HandleMeasurements lists the most recent saved measurements.
func (c *captureRig) HandleMeasurements(w http.ResponseWriter, r *http.Request) {
	limit := recentMeasurementsDefault
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if n > recentMeasurementsMax {
			n = recentMeasurementsMax
		}
		limit = n
	}

	records, err := c.store.RecentMeasurements(limit)
	if err != nil {
		logging.S().Warnf("measurements: list error: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		logging.S().Warnf("measurements: json encode error: %v", err)
	}
}

// HandleMeasurement fetches one saved measurement by id.
func (c *captureRig) HandleMeasurement(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	rec, err := c.store.Measurement(id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.S().Warnf("measurement: fetch error: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		logging.S().Warnf("measurement: json encode error: %v", err)
	}
}
