package asr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-asr/internal/config"
)

// EmbeddedEngine runs recognition in-process against a streaming acoustic
// model. One capture/decode cycle per DecodeStream call: VAD gate, recorder,
// stream context, result assembly.
type EmbeddedEngine struct {
	cfg      config.ASRConfig
	model    Model
	registry *Registry
	gate     *VadGate
	notifier Notifier
	log      *slog.Logger
	timeout  time.Duration
}

func NewEmbeddedEngine(cfg config.ASRConfig, model Model, registry *Registry, notifier Notifier, log *slog.Logger) *EmbeddedEngine {
	return &EmbeddedEngine{
		cfg:      cfg,
		model:    model,
		registry: registry,
		gate:     NewVadGate(),
		notifier: notifier,
		log:      log.With(slog.String("component", "asr-embedded")),
		timeout:  time.Duration(cfg.TimeoutSec) * time.Second,
	}
}

// Start validates that the model capability is usable. The model itself was
// loaded at construction; a load failure never reaches decode time.
func (e *EmbeddedEngine) Start(ctx context.Context) error {
	if e.model == nil {
		return fmt.Errorf("no acoustic model loaded")
	}
	e.log.Info("embedded engine ready", slog.String("language", e.cfg.Language))
	return nil
}

func (e *EmbeddedEngine) Stop() {
	if err := e.model.Close(); err != nil {
		e.log.Warn("close model", slog.String("error", err.Error()))
	}
}

// DecodeStream captures audio for the session and decodes it incrementally.
// Termination causes are uniform: external stop, VAD-gated stop, timeout, or
// the source exhaustion sentinel. The recorder is released and deregistered
// on every exit path.
func (e *EmbeddedEngine) DecodeStream(ctx context.Context, session *Session) (*Result, error) {
	watch := NewStopwatch()
	watch.Start()

	rec := NewRecorder(e.timeout, session.User, session.DeviceUID)
	e.registry.Add(session.DeviceUID, rec)
	e.gate.Bind(rec)
	stopCancel := context.AfterFunc(ctx, rec.StopRecording)
	defer func() {
		stopCancel()
		e.gate.Bind(nil)
		e.gate.Clear()
		rec.Close()
		e.registry.Remove(session.DeviceUID, rec)
		session.State = StateDone
	}()

	stream, err := e.model.CreateStream()
	if err != nil {
		return nil, fmt.Errorf("create stream context: %w", err)
	}

	session.State = StateRecording
	sawText := false
	for {
		chunk, ok := rec.Next()
		if !ok {
			break
		}
		session.State = StateDecoding

		// A bad chunk degrades the session instead of aborting it; the
		// partials accumulated so far stay intact.
		if err := stream.FeedAudio(chunk); err != nil {
			e.log.Warn("feed audio chunk", slog.String("error", err.Error()))
			continue
		}
		text, err := stream.IntermediateDecode()
		if err != nil {
			e.log.Warn("intermediate decode", slog.String("error", err.Error()))
			continue
		}
		if text != "" {
			sawText = true
		}
		// The embedded model carries no native confidence or per-partial
		// timing; 1.0 and 0 are the contract.
		e.notify(session, text, 1.0, 0)
	}

	session.State = StateFinalizing
	text, err := stream.FinishStream()
	elapsed := watch.Stop()
	if err != nil {
		return nil, fmt.Errorf("finish stream: %w", err)
	}

	if !sawText {
		return nil, nil
	}
	return &Result{
		Text:           text,
		Session:        session,
		Likelihood:     1.0,
		ProcessingTime: elapsed,
	}, nil
}

func (e *EmbeddedEngine) OnVadUp() {
	e.gate.SignalVoiceUp()
}

func (e *EmbeddedEngine) OnVadDown() {
	e.gate.SignalVoiceDown()
}

func (e *EmbeddedEngine) OnStartListening(*Session) {}

func (e *EmbeddedEngine) OnToggleOff(string) {}

// notify delivers a partial without letting the downstream layer block or
// panic back into the decode loop.
func (e *EmbeddedEngine) notify(session *Session, text string, likelihood, seconds float64) {
	if e.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("partial notifier panicked", slog.Any("panic", r))
		}
	}()
	e.notifier.PartialTextCaptured(session, text, likelihood, seconds)
}
