package asr

import (
	"sync"
	"time"
)

// frameBuffer bounds how many pushed chunks may queue between the frame
// source and the decode loop before old frames are dropped.
const frameBuffer = 64

// Recorder is the pull side of one capture session: a finite, cancellable,
// timeout-bounded stream of PCM chunks. It is not restartable; a second
// session needs a fresh Recorder.
type Recorder struct {
	user      string
	deviceUID string
	timeout   time.Duration

	frames   chan []int16
	stop     chan struct{}
	stopOnce sync.Once
	deadline time.Time

	mu        sync.Mutex
	recording bool
}

func NewRecorder(timeout time.Duration, user, deviceUID string) *Recorder {
	return &Recorder{
		user:      user,
		deviceUID: deviceUID,
		timeout:   timeout,
		frames:    make(chan []int16, frameBuffer),
		stop:      make(chan struct{}),
		deadline:  time.Now().Add(timeout),
		recording: true,
	}
}

func (r *Recorder) User() string      { return r.user }
func (r *Recorder) DeviceUID() string { return r.deviceUID }

func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Push hands a captured chunk to the decode loop. An empty chunk is the
// source-exhaustion sentinel. Frames pushed after stop are discarded; a full
// buffer drops the oldest frame rather than blocking the capture flow.
func (r *Recorder) Push(samples []int16) {
	if !r.IsRecording() {
		return
	}
	for {
		select {
		case <-r.stop:
			return
		case r.frames <- samples:
			return
		default:
		}
		select {
		case <-r.frames:
		default:
		}
	}
}

// Next pulls the next chunk. ok is false when the stream has terminated:
// external stop, timeout, or the exhaustion sentinel. Cancellation is
// observed here, at chunk boundaries only.
func (r *Recorder) Next() (samples []int16, ok bool) {
	remaining := time.Until(r.deadline)
	if remaining <= 0 {
		return nil, false
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-r.stop:
		return nil, false
	case <-timer.C:
		return nil, false
	case chunk := <-r.frames:
		if len(chunk) == 0 {
			return nil, false
		}
		return chunk, true
	}
}

// StopRecording requests a cooperative stop. Safe to call from any
// goroutine, any number of times.
func (r *Recorder) StopRecording() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Close releases the capture handle. It must run on every exit path of the
// owning session, including failures.
func (r *Recorder) Close() {
	r.StopRecording()
	r.mu.Lock()
	r.recording = false
	r.mu.Unlock()
}
