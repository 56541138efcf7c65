package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/oarsense/rowmon/internal/config"
	"github.com/oarsense/rowmon/internal/engine"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// latestMetrics caches the newest snapshot from the metrics topic for the
// HTTP API and websocket streams.
type latestMetrics struct {
	mu   sync.RWMutex
	m    engine.Metrics
	have bool
}

func (l *latestMetrics) set(m engine.Metrics) {
	l.mu.Lock()
	l.m = m
	l.have = true
	l.mu.Unlock()
}

func (l *latestMetrics) get() (engine.Metrics, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m, l.have
}

// RunWeb serves the browser UI: a JSON API and websocket stream of the
// latest metrics, plus the guided inertia-calibration flow that relays
// browser actions to the monitor's control topic.
func RunWeb() error {
	cfg := config.Get()
	latest := &latestMetrics{}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTT.Broker)

	token := client.Subscribe(cfg.Topics.Metrics, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m engine.Metrics
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("web: metrics unmarshal error: %v", err)
			return
		}
		latest.set(m)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: subscribed to %s", cfg.Topics.Metrics)

	// JSON API endpoint: latest metrics snapshot
	http.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		m, have := latest.get()
		if !have {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// Live metrics stream
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for range ticker.C {
			m, have := latest.get()
			if !have {
				continue
			}
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		}
	})

	// Guided inertia calibration
	http.HandleFunc("/ws/calibration", func(w http.ResponseWriter, r *http.Request) {
		handleCalibrationWS(w, r, client, cfg, latest)
	})

	fs := http.FileServer(http.Dir(cfg.Web.StaticDir))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.Web.Port)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}

// calibrationAction is the browser-side message of the guided flow.
type calibrationAction struct {
	Action string `json:"action"` // start, cancel, apply
}

// calibrationConn serializes writes to the calibration socket: the status
// pusher and the read loop's error replies share one connection, and
// gorilla/websocket allows at most one concurrent writer.
type calibrationConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *calibrationConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// calibrationStatus is what the browser sees while the procedure runs.
type calibrationStatus struct {
	Type        string             `json:"type"` // status, error
	Calibration engine.Calibration `json:"calibration,omitempty"`
	Message     string             `json:"message,omitempty"`
}

// handleCalibrationWS relays browser actions to the control topic and
// streams the calibration section of the metrics back at a steady cadence.
// The monitor owns the actual state machine; this is a pure relay.
func handleCalibrationWS(w http.ResponseWriter, r *http.Request, client mqtt.Client, cfg *config.Config, latest *latestMetrics) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("calibration: websocket upgrade error: %v", err)
		return
	}
	defer raw.Close()

	conn := &calibrationConn{conn: raw}
	done := make(chan struct{})

	// Push calibration state to the browser until the socket dies.
	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m, have := latest.get()
				if !have {
					continue
				}
				status := calibrationStatus{Type: "status", Calibration: m.Calibration}
				if err := conn.WriteJSON(status); err != nil {
					return
				}
			}
		}
	}()
	defer close(done)

	for {
		var msg calibrationAction
		if err := raw.ReadJSON(&msg); err != nil {
			log.Printf("calibration: websocket read error: %v", err)
			return
		}

		var action string
		switch msg.Action {
		case "start":
			action = ActionCalStart
		case "cancel":
			action = ActionCalCancel
		case "apply":
			action = ActionCalApply
		default:
			conn.WriteJSON(calibrationStatus{Type: "error", Message: fmt.Sprintf("unknown action %q", msg.Action)})
			continue
		}

		payload, err := json.Marshal(Command{Action: action})
		if err != nil {
			log.Printf("calibration: marshal error: %v", err)
			continue
		}
		if token := client.Publish(cfg.Topics.Control, 0, false, payload); token.Wait() && token.Error() != nil {
			log.Printf("calibration: control publish error: %v", token.Error())
			conn.WriteJSON(calibrationStatus{Type: "error", Message: "control publish failed"})
		}
		log.Printf("calibration: relayed %s", msg.Action)
	}
}
