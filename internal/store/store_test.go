// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/optical_ruler/internal/calibration"
	"github.com/relabs-tech/optical_ruler/internal/measure"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "measurements.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id string, takenAt time.Time) Record {
	return Record{
		ID:      id,
		TakenAt: takenAt,
		Calibration: calibration.Calibration{
			HorizontalReferenceMM: 96,
			VerticalReferenceMM:   100,
		},
		Metrics: measure.Metrics{
			Right:    measure.EyeMetrics{WidthMM: 28.8, HeightMM: 30, DNPMM: 19.2, PupilHeightMM: 15},
			Left:     measure.EyeMetrics{WidthMM: 28.6, HeightMM: 30.1, DNPMM: 19.4, PupilHeightMM: 14.8},
			BridgeMM: 9.6,
		},
		MarkersJSON: `{"central":{"X":0.5,"Y":0}}`,
	}
}

func TestStoreSaveAssignsIdentity(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	saved, err := s.SaveMeasurement(sampleRecord("", time.Time{}))
	require.NoError(t, err)

	_, err = uuid.Parse(saved.ID)
	assert.NoError(t, err)
	assert.False(t, saved.TakenAt.IsZero())
	assert.Equal(t, time.UTC, saved.TakenAt.Location())
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	want := sampleRecord("m-1", time.Date(2026, 8, 22, 10, 30, 0, 123456789, time.UTC))
	_, err := s.SaveMeasurement(want)
	require.NoError(t, err)

	got, err := s.Measurement("m-1")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.True(t, got.TakenAt.Equal(want.TakenAt), "got %v want %v", got.TakenAt, want.TakenAt)
	assert.Equal(t, want.Calibration, got.Calibration)
	assert.Equal(t, want.Metrics, got.Metrics)
	assert.Equal(t, want.MarkersJSON, got.MarkersJSON)
}

func TestStoreRecentMeasurementsNewestFirst(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	base := time.Date(2026, 8, 22, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		_, err := s.SaveMeasurement(sampleRecord(id, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	records, err := s.RecentMeasurements(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].ID)
	assert.Equal(t, "b", records[1].ID)
}

func TestStoreMeasurementMissing(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	_, err := s.Measurement("no-such-id")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStoreRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	rec := sampleRecord("dup", time.Date(2026, 8, 22, 10, 0, 0, 0, time.UTC))
	_, err := s.SaveMeasurement(rec)
	require.NoError(t, err)

	_, err = s.SaveMeasurement(rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert measurement")
}
