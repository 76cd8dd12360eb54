package asr

import "sync"

// Registry maps device UIDs to their active Recorder so external flows
// (audio frames, stop signals) can reach the capture owned by a blocked
// decode call. One active entry per device at a time.
type Registry struct {
	mu     sync.RWMutex
	active map[string]*Recorder
}

func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Recorder)}
}

func (g *Registry) Add(deviceUID string, rec *Recorder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active[deviceUID] = rec
}

// Remove deregisters rec, but only while it is still the active entry.
// A newer session's recorder is never evicted by a stale cleanup.
func (g *Registry) Remove(deviceUID string, rec *Recorder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[deviceUID] == rec {
		delete(g.active, deviceUID)
	}
}

func (g *Registry) Get(deviceUID string) *Recorder {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active[deviceUID]
}

// StopRecording routes an external stop signal to the device's active
// capture, if any.
func (g *Registry) StopRecording(deviceUID string) {
	if rec := g.Get(deviceUID); rec != nil {
		rec.StopRecording()
	}
}
