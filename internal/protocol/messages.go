package protocol

import "time"

// AudioFrame carries one WAV-framed audio fragment captured by an edge device.
type AudioFrame struct {
	DeviceUID string `json:"device_uid"`
	Sequence  int    `json:"sequence"`
	WAV       []byte `json:"wav"`
	Final     bool   `json:"final"`
}

// SessionStart asks the runtime to open a capture session for a device.
type SessionStart struct {
	SessionID string `json:"session_id"`
	User      string `json:"user"`
	DeviceUID string `json:"device_uid"`
}

// SessionStop requests the active capture on a device to stop.
type SessionStop struct {
	SessionID string `json:"session_id,omitempty"`
	DeviceUID string `json:"device_uid"`
}

// VadSignal reports a voice-activity edge for a device.
type VadSignal struct {
	DeviceUID string    `json:"device_uid"`
	Timestamp time.Time `json:"timestamp"`
}

// AsrToggle flips the delegated engine's listening intent for a device.
type AsrToggle struct {
	SessionID string `json:"session_id,omitempty"`
	DeviceUID string `json:"device_uid"`
}

// TextCaptured is published for partial and final recognition output.
type TextCaptured struct {
	SessionID  string    `json:"session_id"`
	DeviceUID  string    `json:"device_uid"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Likelihood float64   `json:"likelihood"`
	Seconds    float64   `json:"seconds"`
	Timestamp  time.Time `json:"timestamp"`
}

// ProcessEvent reports supervised subprocess lifecycle transitions.
type ProcessEvent struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	Restarts  int       `json:"restarts"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectAudioFramePrefix = "audio.frame"
	SubjectSessionStart     = "asr.session.start"
	SubjectSessionStop      = "asr.session.stop"
	SubjectVadUp            = "asr.vad.up"
	SubjectVadDown          = "asr.vad.down"
	SubjectToggleOn         = "asr.toggle.on"
	SubjectToggleOff        = "asr.toggle.off"
	SubjectTextPartial      = "asr.text.partial"
	SubjectTextCaptured     = "asr.text.captured"
	SubjectProcessLifecycle = "ctrl.process.lifecycle"
)
