package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/oarsense/rowmon/internal/config"
	"github.com/oarsense/rowmon/internal/engine"
)

// displayData holds the latest snapshot for the OLED update loop.
type displayData struct {
	mu      sync.RWMutex
	metrics engine.Metrics
	have    bool
}

// RunDisplay drives the SSD1306 OLED from the metrics topic: distance, pace,
// stroke rate, power and elapsed time while rowing; calibration guidance
// while the inertia procedure runs.
func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: SSD1306 initialized on %s", bus)

	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &displayData{}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTT.Broker)

	token := client.Subscribe(cfg.Topics.Metrics, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m engine.Metrics
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("display: metrics unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.metrics = m
		data.have = true
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", cfg.Topics.Metrics)

	ticker := time.NewTicker(time.Duration(cfg.Display.UpdateIntervalMillis) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		m := data.metrics
		have := data.have
		data.mu.RUnlock()

		if err := updateMetricsDisplay(dev, m, have); err != nil {
			log.Printf("display: update error: %v", err)
		}
	}

	return nil
}

func newFrame() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func updateMetricsDisplay(dev *ssd1306.Dev, m engine.Metrics, have bool) error {
	img, drawer := newFrame()

	if !have {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("rowmon"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return dev.Draw(dev.Bounds(), img, image.Point{})
	}

	if m.Calibration.State != engine.CalIdle {
		drawer.Dot = fixed.P(0, 13)
		drawer.DrawBytes([]byte(fmt.Sprintf("CAL %s", m.Calibration.State)))
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte(fmt.Sprintf("peak %5.1f", m.Calibration.PeakVelocity)))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte(fmt.Sprintf("I %.4f", m.Calibration.CalculatedInertia)))
		return dev.Draw(dev.Bounds(), img, image.Point{})
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(fmt.Sprintf("%7.0fm %s", m.Distance.Total, formatElapsed(m.Session.Elapsed.Seconds()))))

	drawer.Dot = fixed.P(0, 26)
	drawer.DrawBytes([]byte(formatPace(m.Distance.Average)))

	drawer.Dot = fixed.P(0, 39)
	drawer.DrawBytes([]byte(fmt.Sprintf("%4.0fW  %4.1f spm", m.Power.Display, m.Stroke.Rate)))

	drawer.Dot = fixed.P(0, 52)
	drawer.DrawBytes([]byte(fmt.Sprintf("%4d str %5.1f kcal", m.Stroke.Count, m.Calories.Total)))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func showSplash(dev *ssd1306.Dev) error {
	img, drawer := newFrame()

	drawer.Dot = fixed.P(30, 26)
	drawer.DrawBytes([]byte("rowmon"))

	drawer.Dot = fixed.P(12, 43)
	drawer.DrawBytes([]byte("ready to row"))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
