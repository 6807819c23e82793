package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/optical_ruler/internal/calibration"
	"github.com/relabs-tech/optical_ruler/internal/config"
	"github.com/relabs-tech/optical_ruler/internal/logging"
)

// RunWeb serves the monitor page: the latest published diagnostics and
// calibration as JSON, a depth preview image, and the capture and debug
// websockets backed by a local estimator.
func RunWeb() error {
	log := logging.S()
	cfg := config.Get()

	var (
		mu       sync.RWMutex
		lastDiag calibration.Diagnostics
		haveDiag bool
		lastCal  calibration.Calibration
		haveCal  bool
	)

	// 1) Connect to MQTT broker
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Infof("connected to MQTT broker at %s", cfg.MQTTBroker)

	// 2) Subscribe and keep the latest payload of each topic
	diagToken := client.Subscribe(cfg.TopicDiagnostics, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var d calibration.Diagnostics
		if err := json.Unmarshal(msg.Payload(), &d); err != nil {
			log.Warnf("diagnostics payload unmarshal error: %v", err)
			return
		}
		mu.Lock()
		lastDiag = d
		haveDiag = true
		mu.Unlock()
	})
	diagToken.Wait()
	if diagToken.Error() != nil {
		return diagToken.Error()
	}
	log.Infof("subscribed to %s", cfg.TopicDiagnostics)

	calToken := client.Subscribe(cfg.TopicCalibration, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var c calibration.Calibration
		if err := json.Unmarshal(msg.Payload(), &c); err != nil {
			log.Warnf("calibration payload unmarshal error: %v", err)
			return
		}
		mu.Lock()
		lastCal = c
		haveCal = true
		mu.Unlock()
	})
	calToken.Wait()
	if calToken.Error() != nil {
		return calToken.Error()
	}
	log.Infof("subscribed to %s", cfg.TopicCalibration)

	// 3) Capture rig for the interactive endpoints
	rig, err := newCaptureRig(cfg)
	if err != nil {
		return err
	}

	// 4) JSON API endpoints: latest published state
	http.HandleFunc("/api/diagnostics", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		defer mu.RUnlock()

		if !haveDiag {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(lastDiag); err != nil {
			log.Warnf("json encode error: %v", err)
		}
	})

	http.HandleFunc("/api/calibration", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		defer mu.RUnlock()

		if !haveCal {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(lastCal); err != nil {
			log.Warnf("json encode error: %v", err)
		}
	})

	// 5) Interactive endpoints backed by the local rig
	http.HandleFunc("/api/preview.png", rig.HandlePreview)
	http.HandleFunc("/ws/capture", rig.HandleCaptureWS)
	http.HandleFunc("/ws/debug", rig.HandleDebugWS)

	// 6) Saved measurements
	http.HandleFunc("/api/measurements", rig.HandleMeasurements)
	http.HandleFunc("/api/measurement", rig.HandleMeasurement)

	// 7) Static files as the root
	fs := http.FileServer(http.Dir(cfg.WebRoot))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Infof("web server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
