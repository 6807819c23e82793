// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/optical_ruler/internal/config"
	"github.com/relabs-tech/optical_ruler/internal/measure"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Source:             "synthetic",
		SyntheticSeed:      42,
		FrameInterval:      5,
		CropWidth:          1080,
		CropHeight:         1440,
		PoolMaxSamples:     90,
		PoolTTLMS:          1500,
		PoolFallbackTTLMS:  3000,
		WeightFloor:        3,
		MinCandidates:      24,
		BorderFraction:     0.08,
		MinMMPerPixel:      0.015,
		MaxMMPerPixel:      0.8,
		MinDepthMM:         80,
		MaxDepthMM:         1200,
		IPDMinMM:           40,
		IPDMaxMM:           80,
		AnthroTolerance:    0.12,
		AnthroWeightFactor: 0.45,
		StorePath:          filepath.Join(t.TempDir(), "measurements.db"),
	}
}

func dialWS(t *testing.T, handler http.HandlerFunc) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readCapture(t *testing.T, conn *websocket.Conn) CaptureResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var resp CaptureResponse
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func TestCaptureWebsocketSession(t *testing.T) {
	t.Parallel()

	rig, err := newCaptureRig(testConfig(t))
	require.NoError(t, err)
	conn := dialWS(t, rig.HandleCaptureWS)

	// Before any frame, estimates are refused but status still works.
	require.NoError(t, conn.WriteJSON(CaptureMessage{Action: "status"}))
	resp := readCapture(t, conn)
	assert.Equal(t, "status", resp.Type)
	require.NotNil(t, resp.Diagnostics)
	assert.Zero(t, resp.Diagnostics.PoolSize)

	require.NoError(t, conn.WriteJSON(CaptureMessage{Action: "instant"}))
	resp = readCapture(t, conn)
	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Message, "no frame")

	require.NoError(t, conn.WriteJSON(CaptureMessage{Action: "start"}))
	resp = readCapture(t, conn)
	assert.Equal(t, "status", resp.Type)
	assert.Equal(t, "capturing", resp.Message)

	// Wait for the ingest loop to pool a few samples.
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.WriteJSON(CaptureMessage{Action: "status"}))
		resp = readCapture(t, conn)
		require.Equal(t, "status", resp.Type)
		if resp.Diagnostics.PoolSize >= 3 {
			break
		}
		require.True(t, time.Now().Before(deadline), "pool never filled")
		time.Sleep(50 * time.Millisecond)
	}

	require.NoError(t, conn.WriteJSON(CaptureMessage{Action: "finalize", CropWidth: 600, CropHeight: 800}))
	resp = readCapture(t, conn)
	require.Equal(t, "result", resp.Type)
	require.NotNil(t, resp.Calibration)
	assert.True(t, resp.Reliable)
	// The synthetic plane sits near 0.364 mm/px.
	assert.InDelta(t, 218, resp.Calibration.HorizontalReferenceMM, 12)
	assert.InDelta(t, 291, resp.Calibration.VerticalReferenceMM, 16)

	// A full measurement: markers against the live calibration, persisted.
	markers := &measure.Markers{
		Right: measure.EyeData{
			Pupil:     r2.Point{X: 0.3, Y: 0.5},
			NasalX:    0.45,
			TemporalX: 0.15,
			InferiorY: 0.65,
			SuperiorY: 0.35,
		},
		Left: measure.EyeData{
			Pupil:     r2.Point{X: 0.7, Y: 0.5},
			NasalX:    0.55,
			TemporalX: 0.85,
			InferiorY: 0.65,
			SuperiorY: 0.35,
		},
		Central: r2.Point{X: 0.5},
	}
	require.NoError(t, conn.WriteJSON(CaptureMessage{
		Action: "measure", CropWidth: 600, CropHeight: 800, Markers: markers,
	}))
	resp = readCapture(t, conn)
	require.Equal(t, "measurement", resp.Type)
	require.NotNil(t, resp.Metrics)
	assert.NotEmpty(t, resp.RecordID)
	// 30% of a ~218 mm horizontal reference.
	assert.InDelta(t, 65.5, resp.Metrics.Right.WidthMM, 5)

	saved, err := rig.store.Measurement(resp.RecordID)
	require.NoError(t, err)
	assert.Equal(t, *resp.Metrics, saved.Metrics)
	assert.Contains(t, saved.MarkersJSON, `"central"`)

	require.NoError(t, conn.WriteJSON(CaptureMessage{Action: "measure"}))
	resp = readCapture(t, conn)
	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Message, "markers")

	require.NoError(t, conn.WriteJSON(CaptureMessage{Action: "reset"}))
	resp = readCapture(t, conn)
	assert.Equal(t, "status", resp.Type)
	assert.Equal(t, "pool cleared", resp.Message)

	require.NoError(t, conn.WriteJSON(CaptureMessage{Action: "warp"}))
	resp = readCapture(t, conn)
	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Message, "unknown action")

	// cancel ends the session server-side.
	require.NoError(t, conn.WriteJSON(CaptureMessage{Action: "cancel"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var closed CaptureResponse
	assert.Error(t, conn.ReadJSON(&closed))
}

func readDebugUntil(t *testing.T, conn *websocket.Conn, wantType string) DebugResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for i := 0; i < 50; i++ {
		var resp DebugResponse
		require.NoError(t, conn.ReadJSON(&resp))
		if resp.Type == wantType {
			return resp
		}
		// Streamed diagnostics may interleave with command replies.
		require.Equal(t, "diagnostics", resp.Type)
	}
	t.Fatalf("no %q response received", wantType)
	return DebugResponse{}
}

func TestDebugWebsocketStream(t *testing.T) {
	t.Parallel()

	rig, err := newCaptureRig(testConfig(t))
	require.NoError(t, err)
	conn := dialWS(t, rig.HandleDebugWS)

	require.NoError(t, conn.WriteJSON(DebugMessage{Action: "params"}))
	resp := readDebugUntil(t, conn, "params")
	require.NotNil(t, resp.Params)
	assert.Equal(t, 90, resp.Params.MaxSamples)
	assert.InDelta(t, 0.8, resp.Params.Depth.MaxMMPerPixel, 1e-12)

	// Intervals below the floor are clamped.
	require.NoError(t, conn.WriteJSON(DebugMessage{Action: "set_interval", IntervalMS: 10}))
	resp = readDebugUntil(t, conn, "ack")
	assert.Contains(t, resp.Message, "100ms")

	resp = readDebugUntil(t, conn, "diagnostics")
	require.NotNil(t, resp.Diagnostics)
	_, err = time.Parse(time.RFC3339, resp.Timestamp)
	assert.NoError(t, err)

	require.NoError(t, conn.WriteJSON(DebugMessage{Action: "flush"}))
	resp = readDebugUntil(t, conn, "error")
	assert.Contains(t, resp.Message, "unknown action")
}
