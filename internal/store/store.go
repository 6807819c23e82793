// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/relabs-tech/optical_ruler/internal/calibration"
	"github.com/relabs-tech/optical_ruler/internal/measure"
)

// Store persists finished measurements in a local SQLite database.
type Store struct {
	*sql.DB
}

// Record is one saved measurement: the calibration pair stored verbatim
// next to the metrics, plus the marker configuration that produced them.
type Record struct {
	ID          string                  `json:"id"`
	TakenAt     time.Time               `json:"taken_at"`
	Calibration calibration.Calibration `json:"calibration"`
	Metrics     measure.Metrics         `json:"metrics"`
	MarkersJSON string                  `json:"markers_json,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS measurements (
	id TEXT PRIMARY KEY,
	taken_at TEXT NOT NULL,
	horizontal_reference_mm REAL NOT NULL,
	vertical_reference_mm REAL NOT NULL,
	right_width_mm REAL NOT NULL,
	right_height_mm REAL NOT NULL,
	right_dnp_mm REAL NOT NULL,
	right_pupil_height_mm REAL NOT NULL,
	left_width_mm REAL NOT NULL,
	left_height_mm REAL NOT NULL,
	left_dnp_mm REAL NOT NULL,
	left_pupil_height_mm REAL NOT NULL,
	bridge_mm REAL NOT NULL,
	markers_json TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_measurements_taken_at ON measurements(taken_at);
`

// Open opens the measurement database at path, creating it and the
// schema when missing.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return &Store{DB: db}, nil
}

// SaveMeasurement inserts a record, assigning an id and timestamp when
// absent, and returns the stored record.
func (s *Store) SaveMeasurement(r Record) (Record, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.TakenAt.IsZero() {
		r.TakenAt = time.Now().UTC()
	}
	_, err := s.Exec(`
		INSERT INTO measurements (
			id, taken_at,
			horizontal_reference_mm, vertical_reference_mm,
			right_width_mm, right_height_mm, right_dnp_mm, right_pupil_height_mm,
			left_width_mm, left_height_mm, left_dnp_mm, left_pupil_height_mm,
			bridge_mm, markers_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TakenAt.UTC().Format(time.RFC3339Nano),
		r.Calibration.HorizontalReferenceMM, r.Calibration.VerticalReferenceMM,
		r.Metrics.Right.WidthMM, r.Metrics.Right.HeightMM, r.Metrics.Right.DNPMM, r.Metrics.Right.PupilHeightMM,
		r.Metrics.Left.WidthMM, r.Metrics.Left.HeightMM, r.Metrics.Left.DNPMM, r.Metrics.Left.PupilHeightMM,
		r.Metrics.BridgeMM, r.MarkersJSON,
	)
	if err != nil {
		return Record{}, errors.Wrap(err, "insert measurement")
	}
	return r, nil
}

const selectColumns = `
	id, taken_at,
	horizontal_reference_mm, vertical_reference_mm,
	right_width_mm, right_height_mm, right_dnp_mm, right_pupil_height_mm,
	left_width_mm, left_height_mm, left_dnp_mm, left_pupil_height_mm,
	bridge_mm, markers_json`

// Measurement fetches one record by id.
func (s *Store) Measurement(id string) (Record, error) {
	row := s.QueryRow(`SELECT `+selectColumns+` FROM measurements WHERE id = ?`, id)
	return scanRecord(row)
}

// RecentMeasurements lists the newest records, most recent first.
func (s *Store) RecentMeasurements(limit int) ([]Record, error) {
	rows, err := s.Query(`SELECT `+selectColumns+` FROM measurements ORDER BY taken_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query measurements")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scannable) (Record, error) {
	var r Record
	var takenAt string
	err := row.Scan(
		&r.ID, &takenAt,
		&r.Calibration.HorizontalReferenceMM, &r.Calibration.VerticalReferenceMM,
		&r.Metrics.Right.WidthMM, &r.Metrics.Right.HeightMM, &r.Metrics.Right.DNPMM, &r.Metrics.Right.PupilHeightMM,
		&r.Metrics.Left.WidthMM, &r.Metrics.Left.HeightMM, &r.Metrics.Left.DNPMM, &r.Metrics.Left.PupilHeightMM,
		&r.Metrics.BridgeMM, &r.MarkersJSON,
	)
	if err != nil {
		return Record{}, errors.Wrap(err, "scan measurement")
	}
	r.TakenAt, err = time.Parse(time.RFC3339Nano, takenAt)
	if err != nil {
		return Record{}, errors.Wrap(err, "parse taken_at")
	}
	return r, nil
}
