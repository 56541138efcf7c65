package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/oarsense/rowmon/internal/config"
	"github.com/oarsense/rowmon/internal/engine"
)

type stubToken struct{}

func (stubToken) Wait() bool                     { return true }
func (stubToken) WaitTimeout(time.Duration) bool { return true }
func (stubToken) Error() error                   { return nil }
func (stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// stubMQTT records published messages and satisfies the rest of the client
// interface with no-ops.
type stubMQTT struct {
	mu        sync.Mutex
	published []string
}

func (s *stubMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	s.mu.Lock()
	s.published = append(s.published, topic)
	s.mu.Unlock()
	return stubToken{}
}

func (s *stubMQTT) publishCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func (s *stubMQTT) IsConnected() bool      { return true }
func (s *stubMQTT) IsConnectionOpen() bool { return true }
func (s *stubMQTT) Connect() mqtt.Token    { return stubToken{} }
func (s *stubMQTT) Disconnect(uint)        {}
func (s *stubMQTT) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return stubToken{}
}
func (s *stubMQTT) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return stubToken{}
}
func (s *stubMQTT) Unsubscribe(...string) mqtt.Token       { return stubToken{} }
func (s *stubMQTT) AddRoute(string, mqtt.MessageHandler)   {}
func (s *stubMQTT) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

// The calibration socket has two writers: the status pusher and the read
// loop's error replies. This drives both at once; the race detector fails
// the test if the writes are not serialized.
func TestCalibrationSocketConcurrentWrites(t *testing.T) {
	cfg := config.Default()
	latest := &latestMetrics{}
	latest.set(engine.Metrics{})

	client := &stubMQTT{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCalibrationWS(w, r, client, cfg, latest)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Unknown actions draw an immediate error reply while the pusher keeps
	// streaming status frames on its own cadence.
	for i := 0; i < 20; i++ {
		if err := conn.WriteJSON(calibrationAction{Action: "poke"}); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}
	if err := conn.WriteJSON(calibrationAction{Action: "start"}); err != nil {
		t.Fatalf("start write failed: %v", err)
	}

	// Let a few status pushes interleave with the replies above.
	time.Sleep(600 * time.Millisecond)

	if got := client.publishCount(); got != 1 {
		t.Errorf("published %d control commands, want 1", got)
	}

	conn.Close()
	<-done
}

func TestLatestMetricsCache(t *testing.T) {
	latest := &latestMetrics{}

	if _, have := latest.get(); have {
		t.Error("empty cache should report no data")
	}

	var m engine.Metrics
	m.Stroke.Count = 7
	latest.set(m)

	got, have := latest.get()
	if !have {
		t.Fatal("cache should report data after set")
	}
	if got.Stroke.Count != 7 {
		t.Errorf("Stroke.Count = %d, want 7", got.Stroke.Count)
	}
}
