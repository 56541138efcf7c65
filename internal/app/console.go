package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oarsense/rowmon/internal/config"
	"github.com/oarsense/rowmon/internal/engine"
)

// RunConsole subscribes to the metrics and sample topics and prints live
// rows to the terminal.
func RunConsole() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTT.Broker)

	metricsToken := client.Subscribe(cfg.Topics.Metrics, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m engine.Metrics
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("console: metrics unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[ROW ] %s  %7.1fm  %s  %5.1f spm  %4.0fW  %4d strokes  %5.1f kcal\n",
			formatElapsed(m.Session.Elapsed.Seconds()),
			m.Distance.Total,
			formatPace(m.Distance.Average),
			m.Stroke.Rate,
			m.Power.Display,
			m.Stroke.Count,
			m.Calories.Total,
		)

		if m.Calibration.State != engine.CalIdle {
			fmt.Printf("[CAL ] %-8s  peak=%5.1f rad/s  I=%.4f  %s\n",
				m.Calibration.State, m.Calibration.PeakVelocity,
				m.Calibration.CalculatedInertia, m.Calibration.StatusMessage)
		}
	})
	metricsToken.Wait()
	if metricsToken.Error() != nil {
		return metricsToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.Topics.Metrics)

	sampleToken := client.Subscribe(cfg.Topics.Sample, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s engine.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: sample unmarshal error: %v", err)
			return
		}
		fmt.Printf("[SMP ] %4dW  %4d cm/s  hr=%3d  +%d dm\n",
			s.PowerW, s.VelocityCmS, s.HeartRate, s.DistanceDeltaDm)
	})
	sampleToken.Wait()
	if sampleToken.Error() != nil {
		return sampleToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.Topics.Sample)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

// formatPace renders seconds-per-500m as m:ss.s, or dashes when unavailable.
func formatPace(pace float64) string {
	if pace <= 0 || pace >= engine.PaceUnavailable {
		return "-:--.-"
	}
	minutes := int(pace) / 60
	seconds := pace - float64(minutes*60)
	return fmt.Sprintf("%d:%04.1f/500m", minutes, seconds)
}

func formatElapsed(seconds float64) string {
	s := int(seconds)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
