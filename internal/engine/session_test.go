package engine

import (
	"testing"
	"time"
)

func TestSessionElapsed(t *testing.T) {
	start := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	var s Session
	s.Start(start)

	got := s.ElapsedAt(start.Add(90 * time.Second))
	if got != 90*time.Second {
		t.Errorf("ElapsedAt = %v, want 90s", got)
	}
}

func TestSessionPauseResume(t *testing.T) {
	start := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	var s Session
	s.Start(start)

	pauseAt := start.Add(60 * time.Second)
	resumeAt := pauseAt.Add(10 * time.Second)
	readAt := resumeAt.Add(30 * time.Second)

	s.Pause(pauseAt)
	s.Resume(resumeAt)

	if s.TotalPaused != 10*time.Second {
		t.Errorf("TotalPaused = %v, want 10s", s.TotalPaused)
	}

	want := readAt.Sub(start) - 10*time.Second
	got := s.ElapsedAt(readAt)
	if diff := got - want; diff < -time.Millisecond || diff > time.Millisecond {
		t.Errorf("ElapsedAt = %v, want %v within 1ms", got, want)
	}
}

func TestSessionFrozenWhilePaused(t *testing.T) {
	start := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	var s Session
	s.Start(start)

	pauseAt := start.Add(45 * time.Second)
	s.Pause(pauseAt)

	early := s.ElapsedAt(pauseAt.Add(time.Second))
	late := s.ElapsedAt(pauseAt.Add(10 * time.Minute))

	if early != 45*time.Second || late != 45*time.Second {
		t.Errorf("elapsed advanced while paused: %v then %v, want 45s both", early, late)
	}
}

func TestSessionPauseIdempotent(t *testing.T) {
	start := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	var s Session
	s.Start(start)

	s.Pause(start.Add(10 * time.Second))
	s.Pause(start.Add(20 * time.Second)) // must not move the pause anchor
	s.Resume(start.Add(30 * time.Second))

	if s.TotalPaused != 20*time.Second {
		t.Errorf("TotalPaused = %v, want 20s", s.TotalPaused)
	}

	s.Resume(start.Add(40 * time.Second)) // second resume is a no-op
	if s.TotalPaused != 20*time.Second {
		t.Errorf("TotalPaused after double resume = %v, want 20s", s.TotalPaused)
	}
}

func TestSessionPauseBeforeStart(t *testing.T) {
	var s Session
	s.Pause(time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC))

	if s.Paused {
		t.Error("pause before start should be a no-op")
	}
	if s.ElapsedAt(time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC)) != 0 {
		t.Error("unstarted session should report zero elapsed")
	}
}
