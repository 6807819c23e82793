// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/optical_ruler/internal/calibration"
	"github.com/relabs-tech/optical_ruler/internal/config"
	"github.com/relabs-tech/optical_ruler/internal/depth"
	"github.com/relabs-tech/optical_ruler/internal/logging"
	"github.com/relabs-tech/optical_ruler/internal/measure"
	"github.com/relabs-tech/optical_ruler/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local monitor page only
	},
}

// captureRig owns the web node's local frame source, estimator and
// measurement store plus the most recent frame, shared by the capture
// websocket and the preview endpoint.
type captureRig struct {
	cfg   *config.Config
	est   *calibration.Estimator
	src   depth.FrameSource
	store *store.Store

	mu        sync.RWMutex
	lastFrame *depth.Frame
	running   bool
	stopCh    chan struct{}
}

func newCaptureRig(cfg *config.Config) (*captureRig, error) {
	src, err := NewFrameSource(cfg)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}
	return &captureRig{
		cfg:   cfg,
		est:   calibration.NewEstimator(cfg.EstimatorParams()),
		src:   src,
		store: db,
	}, nil
}

// start launches the ingest loop; stop ends it. One loop at a time.
func (c *captureRig) start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	go c.ingestLoop(c.stopCh)
}

func (c *captureRig) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stopCh)
}

func (c *captureRig) ingestLoop(stop chan struct{}) {
	log := logging.S()
	ticker := time.NewTicker(time.Duration(c.cfg.FrameInterval) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frame, err := c.src.Next()
			if err != nil {
				log.Warnf("capture: frame source error: %v", err)
				continue
			}
			c.mu.Lock()
			c.lastFrame = &frame
			c.mu.Unlock()

			if !frame.Tracked {
				c.est.Reset()
				continue
			}
			c.est.Ingest(frame)
		}
	}
}

func (c *captureRig) latest() *depth.Frame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastFrame
}

// CaptureMessage is a client request on the capture websocket.
type CaptureMessage struct {
	Action     string           `json:"action"` // start, status, finalize, instant, measure, reset, cancel
	CropWidth  int              `json:"crop_width,omitempty"`
	CropHeight int              `json:"crop_height,omitempty"`
	Markers    *measure.Markers `json:"markers,omitempty"` // measure only
}

// CaptureResponse is sent back for every request.
type CaptureResponse struct {
	Type        string                   `json:"type"` // status, result, measurement, error
	Diagnostics *calibration.Diagnostics `json:"diagnostics,omitempty"`
	Calibration *calibration.Calibration `json:"calibration,omitempty"`
	Reliable    bool                     `json:"reliable,omitempty"`
	Metrics     *measure.Metrics         `json:"metrics,omitempty"`
	RecordID    string                   `json:"record_id,omitempty"`
	Message     string                   `json:"message,omitempty"`
}

// HandleCaptureWS drives one interactive capture over a websocket:
// "start" begins ingestion, "status" reports the pool, "finalize" and
// "instant" produce calibrations for the requested crop, "measure"
// turns submitted markers into stored millimeter metrics, "reset"
// clears the pool and "cancel" ends the session.
func (c *captureRig) HandleCaptureWS(w http.ResponseWriter, r *http.Request) {
	log := logging.S()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("capture: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()
	defer c.stop()

	for {
		var msg CaptureMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("capture: websocket read error: %v", err)
			}
			return
		}

		cropW, cropH := msg.CropWidth, msg.CropHeight
		if cropW <= 0 {
			cropW = c.cfg.CropWidth
		}
		if cropH <= 0 {
			cropH = c.cfg.CropHeight
		}

		switch msg.Action {
		case "start":
			c.start()
			c.sendStatus(conn, "capturing")

		case "status":
			c.sendStatus(conn, "")

		case "finalize", "instant":
			frame := c.latest()
			if frame == nil {
				sendCapture(conn, CaptureResponse{Type: "error", Message: "no frame seen yet"})
				continue
			}
			var cal calibration.Calibration
			var err error
			if msg.Action == "finalize" {
				cal, err = c.est.Finalize(*frame, cropW, cropH)
			} else {
				cal, err = c.est.InstantEstimate(*frame, cropW, cropH)
			}
			if err != nil {
				sendCapture(conn, CaptureResponse{Type: "error", Message: err.Error()})
				continue
			}
			sendCapture(conn, CaptureResponse{Type: "result", Calibration: &cal, Reliable: cal.IsReliable()})

		case "measure":
			if msg.Markers == nil {
				sendCapture(conn, CaptureResponse{Type: "error", Message: "measure requires markers"})
				continue
			}
			frame := c.latest()
			if frame == nil {
				sendCapture(conn, CaptureResponse{Type: "error", Message: "no frame seen yet"})
				continue
			}
			cal, err := c.est.Finalize(*frame, cropW, cropH)
			if err != nil {
				sendCapture(conn, CaptureResponse{Type: "error", Message: err.Error()})
				continue
			}
			metrics, err := measure.Compute(msg.Markers.Right, msg.Markers.Left, msg.Markers.Central, calibration.NewScale(cal))
			if err != nil {
				sendCapture(conn, CaptureResponse{Type: "error", Message: err.Error()})
				continue
			}
			markersJSON, err := json.Marshal(msg.Markers)
			if err != nil {
				sendCapture(conn, CaptureResponse{Type: "error", Message: err.Error()})
				continue
			}
			rec, err := c.store.SaveMeasurement(store.Record{
				Calibration: cal,
				Metrics:     metrics,
				MarkersJSON: string(markersJSON),
			})
			if err != nil {
				sendCapture(conn, CaptureResponse{Type: "error", Message: err.Error()})
				continue
			}
			sendCapture(conn, CaptureResponse{
				Type:        "measurement",
				Calibration: &cal,
				Reliable:    cal.IsReliable(),
				Metrics:     &metrics,
				RecordID:    rec.ID,
			})

		case "reset":
			c.est.Reset()
			c.sendStatus(conn, "pool cleared")

		case "cancel":
			return

		default:
			sendCapture(conn, CaptureResponse{Type: "error", Message: fmt.Sprintf("unknown action: %s", msg.Action)})
		}
	}
}

func (c *captureRig) sendStatus(conn *websocket.Conn, message string) {
	d := c.est.Diagnostics()
	sendCapture(conn, CaptureResponse{Type: "status", Diagnostics: &d, Message: message})
}

func sendCapture(conn *websocket.Conn, resp CaptureResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		logging.S().Warnf("capture: websocket write error: %v", err)
	}
}
