package asr

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-asr/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingNotifier captures every partial delivered during a decode cycle.
type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) PartialTextCaptured(_ *Session, text string, _, _ float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
}

func (n *recordingNotifier) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

func newTestEmbedded(model Model, notifier Notifier) (*EmbeddedEngine, *Registry) {
	cfg := config.ASRConfig{Language: "en", SampleRate: 16000, Channels: 1, TimeoutSec: 10}
	registry := NewRegistry()
	return NewEmbeddedEngine(cfg, model, registry, notifier, testLogger()), registry
}

// startDecode runs DecodeStream in the background and waits until the
// session's recorder is registered, so the test can push audio at it.
func startDecode(t *testing.T, ctx context.Context, engine *EmbeddedEngine, registry *Registry, session *Session) (*Recorder, chan *Result) {
	t.Helper()
	results := make(chan *Result, 1)
	go func() {
		result, err := engine.DecodeStream(ctx, session)
		if err != nil {
			t.Errorf("decode stream: %v", err)
		}
		results <- result
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rec := registry.Get(session.DeviceUID); rec != nil {
			return rec, results
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("recorder never registered")
	return nil, nil
}

func waitResult(t *testing.T, results chan *Result) *Result {
	t.Helper()
	select {
	case result := <-results:
		return result
	case <-time.After(3 * time.Second):
		t.Fatal("decode did not finish")
		return nil
	}
}

func TestEmbeddedDecodeAssemblesResult(t *testing.T) {
	notifier := &recordingNotifier{}
	engine, registry := newTestEmbedded(NewMockModel(), notifier)
	session := NewSession("", "alice", "device-1", 10*time.Second)

	rec, results := startDecode(t, context.Background(), engine, registry, session)
	rec.Push([]int16{0, 0})
	rec.Push([]int16{500, -500})
	rec.Push([]int16{0, 0})
	rec.Push(nil)

	result := waitResult(t, results)
	if result == nil {
		t.Fatal("expected a result after a voiced chunk")
	}
	if result.Text != "chunk1" {
		t.Fatalf("unexpected transcript %q", result.Text)
	}
	if result.Likelihood != 1.0 {
		t.Fatalf("unexpected likelihood %v", result.Likelihood)
	}
	if result.ProcessingTime < 0 {
		t.Fatalf("unexpected processing time %v", result.ProcessingTime)
	}

	partials := notifier.snapshot()
	if len(partials) != 3 {
		t.Fatalf("expected one partial per chunk, got %d", len(partials))
	}
	sawText := false
	for _, text := range partials {
		if text != "" {
			sawText = true
		}
	}
	if !sawText {
		t.Fatal("expected at least one non-empty partial")
	}
	if session.State != StateDone {
		t.Fatalf("expected done session, got %v", session.State)
	}
	if registry.Get(session.DeviceUID) != nil {
		t.Fatal("recorder must be deregistered after decode")
	}
}

func TestEmbeddedNoAudioYieldsNoResult(t *testing.T) {
	notifier := &recordingNotifier{}
	engine, registry := newTestEmbedded(NewMockModel(), notifier)
	session := NewSession("", "alice", "device-1", 10*time.Second)

	rec, results := startDecode(t, context.Background(), engine, registry, session)
	rec.Push(nil)

	if result := waitResult(t, results); result != nil {
		t.Fatalf("expected no result, got %+v", result)
	}
	if partials := notifier.snapshot(); len(partials) != 0 {
		t.Fatalf("expected no partials, got %v", partials)
	}
}

func TestEmbeddedSilenceOnlyYieldsNoResult(t *testing.T) {
	notifier := &recordingNotifier{}
	engine, registry := newTestEmbedded(NewMockModel(), notifier)
	session := NewSession("", "alice", "device-1", 10*time.Second)

	rec, results := startDecode(t, context.Background(), engine, registry, session)
	rec.Push([]int16{0, 0})
	rec.Push([]int16{0, 0})
	rec.Push(nil)

	if result := waitResult(t, results); result != nil {
		t.Fatalf("expected no result for silence, got %+v", result)
	}
}

func TestEmbeddedVadDownFinalizesBeforeTimeout(t *testing.T) {
	notifier := &recordingNotifier{}
	engine, registry := newTestEmbedded(NewMockModel(), notifier)
	session := NewSession("", "alice", "device-1", 10*time.Second)

	rec, results := startDecode(t, context.Background(), engine, registry, session)
	rec.Push([]int16{500})

	// Let the decode loop consume the chunk before cutting capture.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(notifier.snapshot()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	engine.OnVadUp()
	engine.OnVadDown()

	result := waitResult(t, results)
	if result == nil || result.Text != "chunk1" {
		t.Fatalf("expected finalized transcript, got %+v", result)
	}
}

func TestEmbeddedContextCancelStopsCapture(t *testing.T) {
	engine, registry := newTestEmbedded(NewMockModel(), &recordingNotifier{})
	session := NewSession("", "alice", "device-1", 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	_, results := startDecode(t, ctx, engine, registry, session)
	cancel()

	if result := waitResult(t, results); result != nil {
		t.Fatalf("expected no result on cancel, got %+v", result)
	}
	if session.State != StateDone {
		t.Fatalf("expected done session, got %v", session.State)
	}
}

// countingModel verifies that every decode cycle gets a fresh stream.
type countingModel struct {
	mu      sync.Mutex
	streams int
}

func (m *countingModel) CreateStream() (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams++
	return &mockStream{}, nil
}

func (m *countingModel) Close() error { return nil }

func TestEmbeddedFreshStreamPerSession(t *testing.T) {
	model := &countingModel{}
	engine, registry := newTestEmbedded(model, &recordingNotifier{})

	for i := 0; i < 2; i++ {
		session := NewSession("", "alice", "device-1", 10*time.Second)
		rec, results := startDecode(t, context.Background(), engine, registry, session)
		rec.Push([]int16{500})
		rec.Push(nil)
		waitResult(t, results)
	}

	model.mu.Lock()
	defer model.mu.Unlock()
	if model.streams != 2 {
		t.Fatalf("expected one stream per session, got %d", model.streams)
	}
}

func TestEmbeddedPanickingNotifierDoesNotAbortDecode(t *testing.T) {
	engine, registry := newTestEmbedded(NewMockModel(), NotifierFunc(func(*Session, string, float64, float64) {
		panic("downstream failure")
	}))
	session := NewSession("", "alice", "device-1", 10*time.Second)

	rec, results := startDecode(t, context.Background(), engine, registry, session)
	rec.Push([]int16{500})
	rec.Push(nil)

	result := waitResult(t, results)
	if result == nil || result.Text != "chunk1" {
		t.Fatalf("expected transcript despite notifier panic, got %+v", result)
	}
}
