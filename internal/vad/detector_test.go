package vad

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/loqalabs/loqa-asr/internal/config"
	"github.com/loqalabs/loqa-asr/internal/protocol"
)

// fakeEngine reports speech for any chunk whose first sample is non-zero.
type fakeEngine struct {
	resets int
}

func (e *fakeEngine) ProcessChunk(samples []int16, _ int) (Result, error) {
	if len(samples) > 0 && samples[0] != 0 {
		return Result{IsSpeech: true, Confidence: 0.9}, nil
	}
	return Result{}, nil
}

func (e *fakeEngine) Reset() error {
	e.resets++
	return nil
}

func (e *fakeEngine) Close() error { return nil }

type edge struct {
	subject   string
	deviceUID string
}

func newTestService(t *testing.T, cfg config.VADConfig) (*Service, *[]edge, *[]*fakeEngine) {
	t.Helper()
	var engines []*fakeEngine
	factory := func() (Engine, error) {
		engine := &fakeEngine{}
		engines = append(engines, engine)
		return engine, nil
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewService(context.Background(), cfg, 16000, nil, factory, log)

	var edges []edge
	s.publish = func(subject, deviceUID string) {
		edges = append(edges, edge{subject: subject, deviceUID: deviceUID})
	}
	return s, &edges, &engines
}

// chunk builds a frame worth of samples at 16 kHz; ms*16 samples.
func chunk(ms int, voiced bool) []int16 {
	samples := make([]int16, ms*16)
	if voiced {
		for i := range samples {
			samples[i] = 500
		}
	}
	return samples
}

func TestSpeechEdgeAfterMinSpeech(t *testing.T) {
	cfg := config.VADConfig{Enabled: true, MinSpeechMS: 40, MinSilenceMS: 60}
	s, edges, _ := newTestService(t, cfg)

	if err := s.Observe("device-1", chunk(20, true)); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if len(*edges) != 0 {
		t.Fatalf("edge fired before min speech: %v", *edges)
	}

	if err := s.Observe("device-1", chunk(20, true)); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if len(*edges) != 1 || (*edges)[0].subject != protocol.SubjectVadUp {
		t.Fatalf("expected single vad.up, got %v", *edges)
	}

	// Continued speech must not re-fire.
	_ = s.Observe("device-1", chunk(20, true))
	if len(*edges) != 1 {
		t.Fatalf("duplicate edge: %v", *edges)
	}
}

func TestSilenceEdgeAfterMinSilence(t *testing.T) {
	cfg := config.VADConfig{Enabled: true, MinSpeechMS: 20, MinSilenceMS: 60}
	s, edges, _ := newTestService(t, cfg)

	_ = s.Observe("device-1", chunk(20, true))
	_ = s.Observe("device-1", chunk(20, false))
	_ = s.Observe("device-1", chunk(20, false))
	if len(*edges) != 1 {
		t.Fatalf("vad.down fired before min silence: %v", *edges)
	}

	_ = s.Observe("device-1", chunk(20, false))
	if len(*edges) != 2 || (*edges)[1].subject != protocol.SubjectVadDown {
		t.Fatalf("expected vad.down, got %v", *edges)
	}
}

func TestShortBurstEmitsNoEdge(t *testing.T) {
	cfg := config.VADConfig{Enabled: true, MinSpeechMS: 100, MinSilenceMS: 60}
	s, edges, _ := newTestService(t, cfg)

	_ = s.Observe("device-1", chunk(20, true))
	_ = s.Observe("device-1", chunk(20, false))
	// The burst reset the speech accumulator, so fresh speech starts over.
	_ = s.Observe("device-1", chunk(80, true))
	if len(*edges) != 0 {
		t.Fatalf("expected no edges for sub-threshold bursts, got %v", *edges)
	}
}

func TestSilenceBeforeSpeechEmitsNothing(t *testing.T) {
	cfg := config.VADConfig{Enabled: true, MinSpeechMS: 40, MinSilenceMS: 20}
	s, edges, _ := newTestService(t, cfg)

	for i := 0; i < 5; i++ {
		_ = s.Observe("device-1", chunk(20, false))
	}
	if len(*edges) != 0 {
		t.Fatalf("silence must not produce edges: %v", *edges)
	}
}

func TestFinalFrameEmitsTrailingDown(t *testing.T) {
	cfg := config.VADConfig{Enabled: true, MinSpeechMS: 20, MinSilenceMS: 500}
	s, edges, engines := newTestService(t, cfg)

	_ = s.Observe("device-1", chunk(20, true))
	if len(*edges) != 1 {
		t.Fatalf("expected vad.up, got %v", *edges)
	}

	s.finishStream("device-1")
	if len(*edges) != 2 || (*edges)[1].subject != protocol.SubjectVadDown {
		t.Fatalf("expected trailing vad.down, got %v", *edges)
	}
	if len(*engines) != 1 || (*engines)[0].resets != 1 {
		t.Fatal("expected detector reset on stream end")
	}

	// A final frame for an unknown device is a no-op.
	s.finishStream("device-2")
	if len(*edges) != 2 {
		t.Fatalf("unexpected edge: %v", *edges)
	}
}

func TestDevicesAreIsolated(t *testing.T) {
	cfg := config.VADConfig{Enabled: true, MinSpeechMS: 40, MinSilenceMS: 60}
	s, edges, engines := newTestService(t, cfg)

	_ = s.Observe("device-1", chunk(20, true))
	_ = s.Observe("device-2", chunk(20, true))
	if len(*edges) != 0 {
		t.Fatalf("neither device reached min speech: %v", *edges)
	}

	_ = s.Observe("device-1", chunk(20, true))
	if len(*edges) != 1 || (*edges)[0].deviceUID != "device-1" {
		t.Fatalf("expected edge for device-1 only, got %v", *edges)
	}
	if len(*engines) != 2 {
		t.Fatalf("expected one engine per device, got %d", len(*engines))
	}
}
