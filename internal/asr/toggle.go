package asr

import "sync"

// ListeningToggle tracks per-device listening intent for the delegated
// engine. The blocking decode loop waits on the entry's channel instead of
// sleep-polling, so a toggle-off wakes it immediately.
type ListeningToggle struct {
	mu      sync.Mutex
	entries map[string]*toggleEntry
}

type toggleEntry struct {
	listening bool
	off       chan struct{}
}

func NewListeningToggle() *ListeningToggle {
	return &ListeningToggle{entries: make(map[string]*toggleEntry)}
}

// StartListening marks the device as listening. A fresh wait channel is
// created per capture so a previous toggle-off never leaks into the next
// session.
func (t *ListeningToggle) StartListening(deviceUID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[deviceUID] = &toggleEntry{listening: true, off: make(chan struct{})}
}

// ToggleOff clears the listening flag and wakes any blocked decode call.
// A toggle-off for a device that never started listening is a no-op.
func (t *ListeningToggle) ToggleOff(deviceUID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[deviceUID]
	if !ok || !entry.listening {
		return
	}
	entry.listening = false
	close(entry.off)
}

// Listening reports the device's current intent.
func (t *ListeningToggle) Listening(deviceUID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[deviceUID]
	return ok && entry.listening
}

// Off returns a channel closed once the device stops listening. For a
// device that is not listening the returned channel is already closed.
func (t *ListeningToggle) Off(deviceUID string) <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[deviceUID]
	if !ok || !entry.listening {
		done := make(chan struct{})
		close(done)
		return done
	}
	return entry.off
}
