package engine

import "time"

// Session is the pause/resume gate for elapsed time. While paused, elapsed
// time and everything derived from it does not advance.
type Session struct {
	StartTime   time.Time     `json:"start_time"`
	Elapsed     time.Duration `json:"elapsed"`
	Paused      bool          `json:"paused"`
	PauseStart  time.Time     `json:"-"`
	TotalPaused time.Duration `json:"total_paused"`
	LastResume  time.Time     `json:"-"`
}

// Start anchors the session clock.
func (s *Session) Start(now time.Time) {
	*s = Session{StartTime: now}
}

// Pause freezes the clock; pausing twice is a no-op.
func (s *Session) Pause(now time.Time) {
	if s.Paused || s.StartTime.IsZero() {
		return
	}
	s.Paused = true
	s.PauseStart = now
}

// Resume adds the pause interval to the excluded total and unfreezes.
func (s *Session) Resume(now time.Time) {
	if !s.Paused {
		return
	}
	s.TotalPaused += now.Sub(s.PauseStart)
	s.PauseStart = time.Time{}
	s.LastResume = now
	s.Paused = false
}

// ElapsedAt returns gated elapsed time as of now, floored at zero to absorb
// races between the pause bookkeeping and the caller's clock.
func (s *Session) ElapsedAt(now time.Time) time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}

	end := now
	if s.Paused {
		end = s.PauseStart
	}

	elapsed := end.Sub(s.StartTime) - s.TotalPaused
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed
}
