package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-asr/internal/audio"
	"github.com/loqalabs/loqa-asr/internal/bus"
	"github.com/loqalabs/loqa-asr/internal/config"
	"github.com/loqalabs/loqa-asr/internal/eventstore"
	"github.com/loqalabs/loqa-asr/internal/protocol"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Service routes bus signals to the active engine: session start/stop, VAD
// edges, toggle signals, and audio frames. Each decode runs on its own
// goroutine; the signal handlers run concurrently with it.
type Service struct {
	cfg      config.ASRConfig
	bus      *bus.Client
	engine   Engine
	registry *Registry
	store    *eventstore.Store
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	subs   []*nats.Subscription
	wg     sync.WaitGroup
	ready  bool

	sessionsStarted metric.Int64Counter
	decodeSeconds   metric.Float64Histogram
}

func NewService(parent context.Context, cfg config.ASRConfig, busClient *bus.Client, engine Engine, registry *Registry, store *eventstore.Store, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:      cfg,
		bus:      busClient,
		engine:   engine,
		registry: registry,
		store:    store,
		log:      log.With(slog.String("component", "asr-service")),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.initMetrics()
	return s
}

func (s *Service) initMetrics() {
	meter := otel.Meter("github.com/loqalabs/loqa-asr/asr")
	var err error
	if s.sessionsStarted, err = meter.Int64Counter("asr_sessions_started_total"); err != nil {
		s.log.Warn("failed to create session counter", slog.String("error", err.Error()))
	}
	if s.decodeSeconds, err = meter.Float64Histogram("asr_decode_seconds"); err != nil {
		s.log.Warn("failed to create decode histogram", slog.String("error", err.Error()))
	}
}

func (s *Service) Start() error {
	subjects := []struct {
		subject string
		handler nats.MsgHandler
	}{
		{protocol.SubjectSessionStart, s.handleSessionStart},
		{protocol.SubjectSessionStop, s.handleSessionStop},
		{protocol.SubjectVadUp, s.handleVadUp},
		{protocol.SubjectVadDown, s.handleVadDown},
		{protocol.SubjectToggleOff, s.handleToggleOff},
		{protocol.SubjectAudioFramePrefix + ".>", s.handleFrame},
	}
	for _, sub := range subjects {
		subscription, err := s.bus.Conn().Subscribe(sub.subject, sub.handler)
		if err != nil {
			s.drainSubs()
			return fmt.Errorf("subscribe %s: %w", sub.subject, err)
		}
		s.subs = append(s.subs, subscription)
	}
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.drainSubs()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.ready
}

func (s *Service) drainSubs() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) handleSessionStart(msg *nats.Msg) {
	var start protocol.SessionStart
	if err := json.Unmarshal(msg.Data, &start); err != nil {
		s.log.Warn("failed to decode session start", slogError(err))
		return
	}
	if start.DeviceUID == "" {
		s.log.Warn("session start without device uid")
		return
	}
	if rec := s.registry.Get(start.DeviceUID); rec != nil && rec.IsRecording() {
		s.log.Warn("capture already active for device", slog.String("device_uid", start.DeviceUID))
		return
	}

	session := NewSession(start.SessionID, start.User, start.DeviceUID, time.Duration(s.cfg.TimeoutSec)*time.Second)
	s.engine.OnStartListening(session)
	if s.sessionsStarted != nil {
		s.sessionsStarted.Add(s.ctx, 1)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.decodeStream(session)
	}()
}

func (s *Service) decodeStream(session *Session) {
	if err := s.store.AppendSession(s.ctx, session.ID, session.User, session.DeviceUID); err != nil {
		s.log.Warn("record session", slogError(err))
	}

	result, err := s.engine.DecodeStream(s.ctx, session)
	if err != nil {
		s.log.Error("decode stream failed",
			slog.String("session_id", session.ID),
			slog.String("device_uid", session.DeviceUID),
			slogError(err))
		return
	}
	if s.decodeSeconds != nil && result != nil {
		s.decodeSeconds.Record(s.ctx, result.ProcessingTime)
	}

	if result == nil || result.Text == "" {
		// Nothing recognized is a normal outcome, not a failure.
		s.log.Debug("session yielded no result", slog.String("session_id", session.ID))
		return
	}

	s.log.Debug("captured text",
		slog.String("session_id", session.ID),
		slog.String("text", result.Text))
	s.publishCaptured(session, result.Text, result.Likelihood, result.ProcessingTime, false)
	if err := s.store.AppendTranscript(s.ctx, eventstore.Transcript{
		SessionID:  session.ID,
		DeviceUID:  session.DeviceUID,
		Text:       result.Text,
		Partial:    false,
		Likelihood: result.Likelihood,
		Seconds:    result.ProcessingTime,
	}); err != nil {
		s.log.Warn("record transcript", slogError(err))
	}
}

// PartialTextCaptured implements Notifier for the embedded engine's decode
// loop. Errors are logged, never surfaced back into the loop.
func (s *Service) PartialTextCaptured(session *Session, text string, likelihood, seconds float64) {
	if text == "" {
		return
	}
	s.publishCaptured(session, text, likelihood, seconds, true)
}

func (s *Service) publishCaptured(session *Session, text string, likelihood, seconds float64, partial bool) {
	subject := protocol.SubjectTextCaptured
	if partial {
		subject = protocol.SubjectTextPartial
	}
	msg := protocol.TextCaptured{
		SessionID:  session.ID,
		DeviceUID:  session.DeviceUID,
		Text:       text,
		Partial:    partial,
		Likelihood: likelihood,
		Seconds:    seconds,
		Timestamp:  time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Warn("failed to marshal captured text", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.log.Warn("failed to publish captured text", slogError(err))
	}
}

func (s *Service) handleSessionStop(msg *nats.Msg) {
	var stop protocol.SessionStop
	if err := json.Unmarshal(msg.Data, &stop); err != nil {
		s.log.Warn("failed to decode session stop", slogError(err))
		return
	}
	s.registry.StopRecording(stop.DeviceUID)
}

func (s *Service) handleVadUp(msg *nats.Msg) {
	var signal protocol.VadSignal
	if err := json.Unmarshal(msg.Data, &signal); err != nil {
		s.log.Warn("failed to decode vad signal", slogError(err))
		return
	}
	if !s.deviceRecording(signal.DeviceUID) {
		return
	}
	s.engine.OnVadUp()
}

func (s *Service) handleVadDown(msg *nats.Msg) {
	var signal protocol.VadSignal
	if err := json.Unmarshal(msg.Data, &signal); err != nil {
		s.log.Warn("failed to decode vad signal", slogError(err))
		return
	}
	if !s.deviceRecording(signal.DeviceUID) {
		return
	}
	s.engine.OnVadDown()
}

func (s *Service) handleToggleOff(msg *nats.Msg) {
	var toggle protocol.AsrToggle
	if err := json.Unmarshal(msg.Data, &toggle); err != nil {
		s.log.Warn("failed to decode toggle", slogError(err))
		return
	}
	s.engine.OnToggleOff(toggle.DeviceUID)
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.log.Warn("failed to decode audio frame", slogError(err))
		return
	}
	rec := s.registry.Get(frame.DeviceUID)
	if rec == nil || !rec.IsRecording() {
		return
	}
	if frame.Final {
		rec.Push(nil)
		return
	}
	samples, err := audio.DecodeFrame(frame.WAV)
	if err != nil {
		s.log.Warn("failed to decode frame payload", slogError(err))
		return
	}
	rec.Push(samples)
}

func (s *Service) deviceRecording(deviceUID string) bool {
	rec := s.registry.Get(deviceUID)
	return rec != nil && rec.IsRecording()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
