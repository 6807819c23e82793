package app

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/optical_ruler/internal/calibration"
	"github.com/relabs-tech/optical_ruler/internal/config"
	"github.com/relabs-tech/optical_ruler/internal/depth"
	"github.com/relabs-tech/optical_ruler/internal/logging"
)

// NewFrameSource builds the configured frame source.
func NewFrameSource(cfg *config.Config) (depth.FrameSource, error) {
	switch cfg.Source {
	case "replay":
		return depth.NewReplaySource(cfg.ReplayDir)
	default:
		return depth.NewSyntheticSource(cfg.SyntheticSeed), nil
	}
}

// RunProducer ingests frames from the configured source and publishes
// estimator diagnostics on every frame plus an instant calibration at
// the configured cadence.
func RunProducer() error {
	log := logging.S()
	cfg := config.Get()

	// 1) Frame source and estimator
	src, err := NewFrameSource(cfg)
	if err != nil {
		return err
	}
	est := calibration.NewEstimator(cfg.EstimatorParams())
	log.Infof("frame source ready (%s)", cfg.Source)

	// 2) Connect to MQTT broker
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDProducer)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Infof("connected to MQTT broker at %s", cfg.MQTTBroker)

	// 3) Ingest loop
	ticker := time.NewTicker(time.Duration(cfg.FrameInterval) * time.Millisecond)
	defer ticker.Stop()

	calEvery := time.Duration(cfg.CalibrationInterval) * time.Millisecond
	var lastCal time.Time

	for t := range ticker.C {
		frame, err := src.Next()
		if err != nil {
			log.Warnf("frame source error: %v", err)
			continue
		}

		if !frame.Tracked {
			// Samples from a lost-tracking episode must not leak into the
			// next capture.
			est.Reset()
			log.Debugf("tracking lost, estimator pool reset")
			continue
		}

		est.Ingest(frame)

		diag := est.Diagnostics()
		payload, err := json.Marshal(diag)
		if err != nil {
			log.Warnf("diagnostics marshal error: %v", err)
			continue
		}
		if token := client.Publish(cfg.TopicDiagnostics, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Warnf("MQTT publish error (diagnostics): %v", token.Error())
			continue
		}

		if t.Sub(lastCal) < calEvery {
			continue
		}
		lastCal = t

		cal, err := est.InstantEstimate(frame, cfg.CropWidth, cfg.CropHeight)
		if err != nil {
			log.Debugf("no instant calibration yet: %v", err)
			continue
		}
		payload, err = json.Marshal(cal)
		if err != nil {
			log.Warnf("calibration marshal error: %v", err)
			continue
		}
		if token := client.Publish(cfg.TopicCalibration, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Warnf("MQTT publish error (calibration): %v", token.Error())
			continue
		}
		log.Infof("instant calibration h=%.1f mm v=%.1f mm (pool=%d recent=%d)",
			cal.HorizontalReferenceMM, cal.VerticalReferenceMM, diag.PoolSize, diag.RecentCount)
	}
	return nil
}
