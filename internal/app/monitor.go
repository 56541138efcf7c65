package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oarsense/rowmon/internal/config"
	"github.com/oarsense/rowmon/internal/engine"
	"github.com/oarsense/rowmon/internal/ftms"
	"github.com/oarsense/rowmon/internal/history"
	"github.com/oarsense/rowmon/internal/pulse"
)

// RunMonitor is the main firmware process: pulse capture feeds the engine's
// processing loop, snapshots and per-second samples go out over MQTT, and
// the control topic drives the session/calibration surface.
func RunMonitor() error {
	log.Println("starting rowmon monitor")

	cfg := config.Get()

	reader, err := newReader(cfg.Capture)
	if err != nil {
		return fmt.Errorf("pulse capture init: %w", err)
	}
	log.Printf("pulse capture source: %s", cfg.Capture.Source)

	store, err := history.Open(cfg.History.DBPath)
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}
	defer store.Close()

	mon := engine.New(cfg.Rower)

	// --- per-second sample buffering + publish ---
	var (
		sampleMu sync.Mutex
		samples  []engine.Sample
	)
	sampleCh := make(chan engine.Sample, 16)
	mon.OnSample(func(s engine.Sample) {
		select {
		case sampleCh <- s:
		default:
			// The publisher stalled; dropping one sample beats blocking
			// the processing loop.
		}
	})

	// --- connect to MQTT ---
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientIDMonitor)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("connected to MQTT broker at %s", cfg.MQTT.Broker)

	// --- control surface ---
	ctrlToken := client.Subscribe(cfg.Topics.Control, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var cmd Command
		if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
			log.Printf("control: bad payload: %v", err)
			return
		}
		now := time.Now()

		switch cmd.Action {
		case ActionSessionStart:
			mon.StartSession(now)
			sampleMu.Lock()
			samples = samples[:0]
			sampleMu.Unlock()
			log.Println("control: session started")

		case ActionSessionEnd:
			summary := mon.EndSession(now)
			sampleMu.Lock()
			buffered := make([]engine.Sample, len(samples))
			copy(buffered, samples)
			samples = samples[:0]
			sampleMu.Unlock()

			id, err := store.SaveSession(summary, buffered)
			switch {
			case errors.Is(err, history.ErrDiscarded):
				log.Printf("control: session ended, discarded as noise (%d strokes, %.1fm)",
					summary.Strokes, summary.Distance)
			case err != nil:
				log.Printf("control: session save error: %v", err)
			default:
				log.Printf("control: session %d saved: %.0fm in %s", id,
					summary.Distance, summary.Elapsed.Round(time.Second))
			}

		case ActionPause:
			mon.Pause(now)
			log.Println("control: paused")
		case ActionResume:
			mon.Resume(now)
			log.Println("control: resumed")
		case ActionReset:
			mon.Reset()
			log.Println("control: reset")
		case ActionCalStart:
			mon.StartCalibration(now)
			log.Println("control: inertia calibration started")
		case ActionCalCancel:
			mon.CancelCalibration()
			log.Println("control: inertia calibration cancelled")
		case ActionCalApply:
			if err := mon.ApplyCalibration(); err != nil {
				log.Printf("control: calibration apply failed: %v", err)
			} else {
				log.Println("control: calibration applied")
			}
		case ActionDragReset:
			mon.RecalibrateDrag()
			log.Println("control: drag recalibration started")
		default:
			log.Printf("control: unknown action %q", cmd.Action)
		}
	})
	ctrlToken.Wait()
	if ctrlToken.Error() != nil {
		return fmt.Errorf("subscribe control: %w", ctrlToken.Error())
	}
	log.Printf("subscribed to control topic %s", cfg.Topics.Control)

	// --- heart rate injection ---
	hrToken := client.Subscribe(cfg.Topics.HeartRate, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var hr HeartRateMessage
		if err := json.Unmarshal(msg.Payload(), &hr); err != nil {
			log.Printf("hr: bad payload: %v", err)
			return
		}
		mon.SetHeartRate(hr.BPM)
	})
	hrToken.Wait()
	if hrToken.Error() != nil {
		return fmt.Errorf("subscribe heart rate: %w", hrToken.Error())
	}

	// --- processing loop ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan pulse.Event, 64)
	go func() {
		defer close(events)
		for {
			ev, err := reader.Next()
			if err != nil {
				log.Printf("pulse read error: %v", err)
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		tick := time.Duration(cfg.Monitor.TickIntervalMillis) * time.Millisecond
		if err := mon.Run(ctx, events, tick); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("engine loop: %v", err)
		}
	}()

	// --- sample drain + publish ---
	go func() {
		for s := range sampleCh {
			sampleMu.Lock()
			samples = append(samples, s)
			sampleMu.Unlock()

			payload, err := json.Marshal(s)
			if err != nil {
				log.Printf("sample marshal error: %v", err)
				continue
			}
			client.Publish(cfg.Topics.Sample, 0, false, payload)
		}
	}()

	// --- snapshot broadcast ---
	publishTicker := time.NewTicker(time.Duration(cfg.Monitor.PublishIntervalMillis) * time.Millisecond)
	defer publishTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	log.Println("monitor running")

	for {
		select {
		case <-publishTicker.C:
			snap := mon.Snapshot()

			payload, err := json.Marshal(snap)
			if err != nil {
				log.Printf("metrics marshal error: %v", err)
				continue
			}
			if token := client.Publish(cfg.Topics.Metrics, 0, true, payload); token.Wait() && token.Error() != nil {
				log.Printf("MQTT publish error (metrics): %v", token.Error())
			}

			record := ftms.EncodeRowerData(snap)
			client.Publish(cfg.Topics.FTMS, 0, false, record)

		case <-sigCh:
			log.Println("monitor shutting down")
			if mon.Active() {
				summary := mon.EndSession(time.Now())
				sampleMu.Lock()
				buffered := make([]engine.Sample, len(samples))
				copy(buffered, samples)
				sampleMu.Unlock()
				if _, err := store.SaveSession(summary, buffered); err != nil && !errors.Is(err, history.ErrDiscarded) {
					log.Printf("final session save error: %v", err)
				}
			}
			return nil
		}
	}
}

func newReader(cfg config.CaptureConfig) (pulse.Reader, error) {
	switch cfg.Source {
	case "gpio":
		return pulse.NewGPIOReader(cfg.FlywheelPin, cfg.SeatPin)
	case "serial":
		return pulse.NewSerialReader(cfg.SerialPort, cfg.SerialBaud)
	case "mock":
		return pulse.NewMockReader(config.Get().Rower.MagnetsPerRevolution), nil
	default:
		return nil, fmt.Errorf("unknown capture source %q", cfg.Source)
	}
}
