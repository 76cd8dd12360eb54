package asr

import "sync"

// VadGate records whether a voice-activity detector told the current session
// that speech started. The detector flow sets it; the matching voice-down
// edge stops the bound recorder only when the gate itself was set, so a
// spurious or out-of-order voice-down never kills a capture the gate never
// started (push-to-talk captures in particular).
type VadGate struct {
	mu        sync.Mutex
	triggered bool
	recorder  *Recorder
}

func NewVadGate() *VadGate {
	return &VadGate{}
}

// Bind attaches the gate to the session's active recorder. Passing nil
// detaches it.
func (g *VadGate) Bind(rec *Recorder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recorder = rec
}

func (g *VadGate) SignalVoiceUp() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.triggered = true
}

// SignalVoiceDown stops the bound recorder when the gate was set, and is a
// no-op otherwise.
func (g *VadGate) SignalVoiceDown() {
	g.mu.Lock()
	if !g.triggered {
		g.mu.Unlock()
		return
	}
	g.triggered = false
	rec := g.recorder
	g.mu.Unlock()

	if rec != nil {
		rec.StopRecording()
	}
}

// Clear resets the flag without touching the recorder. Called when a session
// finishes.
func (g *VadGate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.triggered = false
}

func (g *VadGate) Triggered() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.triggered
}
