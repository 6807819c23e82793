// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/optical_ruler/internal/calibration"
	"github.com/relabs-tech/optical_ruler/internal/logging"
)

const (
	debugStreamDefault = 500 * time.Millisecond
	debugStreamMin     = 100 * time.Millisecond
	debugStreamMax     = 10 * time.Second
)

// DebugMessage is a client request on the debug websocket.
type DebugMessage struct {
	Action     string `json:"action"` // params, set_interval
	IntervalMS int    `json:"interval_ms,omitempty"`
}

// DebugResponse carries one streamed snapshot or a parameter dump.
type DebugResponse struct {
	Type        string                   `json:"type"` // diagnostics, params, ack, error
	Diagnostics *calibration.Diagnostics `json:"diagnostics,omitempty"`
	Params      *calibration.Params      `json:"params,omitempty"`
	Timestamp   string                   `json:"timestamp,omitempty"`
	Message     string                   `json:"message,omitempty"`
}

// HandleDebugWS streams estimator diagnostics at a client-tunable rate
// and answers parameter inspection requests. A single goroutine owns all
// writes; the reader only forwards requests.
func (c *captureRig) HandleDebugWS(w http.ResponseWriter, r *http.Request) {
	log := logging.S()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("debug: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	requests := make(chan DebugMessage)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var msg DebugMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			requests <- msg
		}
	}()

	params := c.est.Params()
	ticker := time.NewTicker(debugStreamDefault)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case msg := <-requests:
			switch msg.Action {
			case "params":
				writeDebug(conn, DebugResponse{Type: "params", Params: &params})

			case "set_interval":
				interval := time.Duration(msg.IntervalMS) * time.Millisecond
				if interval < debugStreamMin {
					interval = debugStreamMin
				}
				if interval > debugStreamMax {
					interval = debugStreamMax
				}
				ticker.Reset(interval)
				writeDebug(conn, DebugResponse{Type: "ack", Message: fmt.Sprintf("stream interval set to %v", interval)})

			default:
				writeDebug(conn, DebugResponse{Type: "error", Message: fmt.Sprintf("unknown action: %s", msg.Action)})
			}

		case <-ticker.C:
			d := c.est.Diagnostics()
			writeDebug(conn, DebugResponse{
				Type:        "diagnostics",
				Diagnostics: &d,
				Timestamp:   time.Now().Format(time.RFC3339),
			})
		}
	}
}

func writeDebug(conn *websocket.Conn, resp DebugResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		logging.S().Warnf("debug: websocket write error: %v", err)
	}
}
