package history

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/oarsense/rowmon/internal/engine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "rowmon.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testSummary() engine.Summary {
	start := time.Date(2026, 8, 20, 6, 30, 0, 0, time.UTC)
	return engine.Summary{
		StartedAt:     start,
		EndedAt:       start.Add(30 * time.Minute),
		Elapsed:       30 * time.Minute,
		Distance:      6000,
		Strokes:       540,
		AvgPace:       150,
		BestPace:      138,
		AvgPower:      165,
		PeakPower:     310,
		Calories:      101.2,
		AvgStrokeRate: 18,
		DragFactor:    118.5,
	}
}

func TestSaveAndLoadSession(t *testing.T) {
	store := openTestStore(t)
	sum := testSummary()
	samples := []engine.Sample{
		{PowerW: 160, VelocityCmS: 330, HeartRate: 140, DistanceDeltaDm: 33},
		{PowerW: 170, VelocityCmS: 335, HeartRate: 142, DistanceDeltaDm: 34},
	}

	id, err := store.SaveSession(sum, samples)
	if err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if id == 0 {
		t.Fatal("SaveSession returned id 0")
	}

	sessions, err := store.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}

	got := sessions[0]
	if got.ID != id {
		t.Errorf("ID = %d, want %d", got.ID, id)
	}
	if !got.StartedAt.Equal(sum.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, sum.StartedAt)
	}
	if got.DistanceM != sum.Distance {
		t.Errorf("DistanceM = %v, want %v", got.DistanceM, sum.Distance)
	}
	if got.Strokes != sum.Strokes {
		t.Errorf("Strokes = %d, want %d", got.Strokes, sum.Strokes)
	}
	if math.Abs(got.ElapsedS-sum.Elapsed.Seconds()) > 1e-9 {
		t.Errorf("ElapsedS = %v, want %v", got.ElapsedS, sum.Elapsed.Seconds())
	}
	if got.DragFactor != sum.DragFactor {
		t.Errorf("DragFactor = %v, want %v", got.DragFactor, sum.DragFactor)
	}

	loaded, err := store.Samples(id)
	if err != nil {
		t.Fatalf("Samples failed: %v", err)
	}
	if len(loaded) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(loaded), len(samples))
	}
	for i := range samples {
		if loaded[i] != samples[i] {
			t.Errorf("sample %d = %+v, want %+v", i, loaded[i], samples[i])
		}
	}
}

func TestSaveSessionDiscardsNoise(t *testing.T) {
	store := openTestStore(t)

	tests := []struct {
		name     string
		strokes  int
		distance float64
	}{
		{"too few strokes", 4, 100},
		{"too short", 50, 9.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := testSummary()
			sum.Strokes = tt.strokes
			sum.Distance = tt.distance

			if _, err := store.SaveSession(sum, nil); !errors.Is(err, ErrDiscarded) {
				t.Errorf("SaveSession error = %v, want ErrDiscarded", err)
			}
		})
	}

	sessions, err := store.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("got %d sessions, want 0 after discards", len(sessions))
	}
}

func TestRecentSessionsOrderAndLimit(t *testing.T) {
	store := openTestStore(t)

	for i := 0; i < 3; i++ {
		sum := testSummary()
		sum.StartedAt = sum.StartedAt.Add(time.Duration(i) * 24 * time.Hour)
		sum.EndedAt = sum.StartedAt.Add(30 * time.Minute)
		if _, err := store.SaveSession(sum, nil); err != nil {
			t.Fatalf("SaveSession %d failed: %v", i, err)
		}
	}

	sessions, err := store.RecentSessions(2)
	if err != nil {
		t.Fatalf("RecentSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if !sessions[0].StartedAt.After(sessions[1].StartedAt) {
		t.Errorf("sessions out of order: %v before %v",
			sessions[0].StartedAt, sessions[1].StartedAt)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rowmon.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if _, err := store.SaveSession(testSummary(), nil); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	store.Close()

	// Reopening must not disturb existing rows.
	store, err = Open(path)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer store.Close()

	sessions, err := store.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("got %d sessions, want 1", len(sessions))
	}
}
