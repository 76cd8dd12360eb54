package asr

import "time"

// Stopwatch measures the wall-clock span of a capture/decode cycle.
// The clock is injectable for tests.
type Stopwatch struct {
	clock   func() time.Time
	started time.Time
	stopped time.Time
	running bool
}

func NewStopwatch() *Stopwatch {
	return &Stopwatch{clock: time.Now}
}

func (s *Stopwatch) Start() {
	s.started = s.clock()
	s.running = true
}

// Stop freezes the watch and returns the elapsed duration in seconds.
func (s *Stopwatch) Stop() float64 {
	if !s.running {
		return s.Seconds()
	}
	s.stopped = s.clock()
	s.running = false
	return s.Seconds()
}

// Seconds reports elapsed time; while running it reads the live clock.
func (s *Stopwatch) Seconds() float64 {
	if s.started.IsZero() {
		return 0
	}
	if s.running {
		return s.clock().Sub(s.started).Seconds()
	}
	return s.stopped.Sub(s.started).Seconds()
}
