package app

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/optical_ruler/internal/calibration"
	"github.com/relabs-tech/optical_ruler/internal/config"
	"github.com/relabs-tech/optical_ruler/internal/logging"
)

// RunConsoleMQTT subscribes to the diagnostics and calibration topics
// and pretty-prints every payload until interrupted.
func RunConsoleMQTT() error {
	log := logging.S()
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Infof("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Subscribe to estimator diagnostics
	diagToken := client.Subscribe(cfg.TopicDiagnostics, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var d calibration.Diagnostics
		if err := json.Unmarshal(msg.Payload(), &d); err != nil {
			log.Warnf("console: diagnostics unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[DIAG]  pool=%3d recent=%3d  x=%7.4f y=%7.4f  wx=%8.1f wy=%8.1f\n",
			d.PoolSize, d.RecentCount,
			d.LastMMPerPixelX, d.LastMMPerPixelY,
			d.LastWeightX, d.LastWeightY,
		)
	})
	diagToken.Wait()
	if diagToken.Error() != nil {
		return diagToken.Error()
	}
	log.Infof("console: subscribed to %s", cfg.TopicDiagnostics)

	// Subscribe to instant calibrations
	calToken := client.Subscribe(cfg.TopicCalibration, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var c calibration.Calibration
		if err := json.Unmarshal(msg.Payload(), &c); err != nil {
			log.Warnf("console: calibration unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[CAL ]  h=%7.2f mm  v=%7.2f mm  reliable=%v\n",
			c.HorizontalReferenceMM, c.VerticalReferenceMM, c.IsReliable(),
		)
	})
	calToken.Wait()
	if calToken.Error() != nil {
		return calToken.Error()
	}
	log.Infof("console: subscribed to %s", cfg.TopicCalibration)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Infof("console: shutting down")
	client.Disconnect(250)
	return nil
}
