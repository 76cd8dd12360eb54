package asr

import (
	"time"

	"github.com/google/uuid"
)

// SessionState tracks the capture/decode lifecycle of one recognition attempt.
type SessionState int

const (
	StateIdle SessionState = iota
	StateRecording
	StateDecoding
	StateFinalizing
	StateDone
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateDecoding:
		return "decoding"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Session identifies one recognition attempt. It is created per decode call,
// owned exclusively by that call, and discarded when it returns.
type Session struct {
	ID        string
	User      string
	DeviceUID string
	Deadline  time.Time
	State     SessionState
}

func NewSession(id, user, deviceUID string, timeout time.Duration) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		ID:        id,
		User:      user,
		DeviceUID: deviceUID,
		Deadline:  time.Now().Add(timeout),
		State:     StateIdle,
	}
}

// Result packages the outcome of a completed session. A session that never
// produced a non-empty partial yields no Result at all.
type Result struct {
	Text           string
	Session        *Session
	Likelihood     float64
	ProcessingTime float64
}

// TranscriptEvent is a single partial or final recognition output.
type TranscriptEvent struct {
	Text           string
	Confidence     float64
	IsFinal        bool
	ElapsedSeconds float64
}
