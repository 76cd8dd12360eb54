package vad

// Result holds the outcome of a single VAD probe.
type Result struct {
	IsSpeech   bool
	Confidence float32
}

// Engine processes audio chunks and reports per-chunk voice activity.
// Engines are stateful and single-stream: one instance per device.
type Engine interface {
	ProcessChunk(samples []int16, sampleRate int) (Result, error)
	// Reset clears internal state between utterances.
	Reset() error
	// Close releases resources.
	Close() error
}

// Factory builds a fresh Engine for a device stream.
type Factory func() (Engine, error)
