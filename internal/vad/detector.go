package vad

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
	"github.com/loqalabs/loqa-asr/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service turns device audio frames into vad.up / vad.down edges on the
// bus. It accounts speech and silence in audio time (sample counts), not
// wall clock, so detection is independent of frame delivery jitter.
type Service struct {
	cfg        config.VADConfig
	sampleRate int
	bus        *bus.Client
	factory    Factory
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sub    *nats.Subscription

	mu      sync.Mutex
	devices map[string]*deviceState
	ready   bool

	// publish is swappable in tests.
	publish func(subject, deviceUID string)
}

type deviceState struct {
	engine    Engine
	speaking  bool
	speechMS  int
	silenceMS int
}

func NewService(parent context.Context, cfg config.VADConfig, sampleRate int, busClient *bus.Client, factory Factory, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:        cfg,
		sampleRate: sampleRate,
		bus:        busClient,
		factory:    factory,
		log:        log.With(slog.String("component", "vad")),
		ctx:        ctx,
		cancel:     cancel,
		devices:    make(map[string]*deviceState),
	}
	s.publish = s.publishEdge
	return s
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectAudioFramePrefix+".>", s.handleFrame)
	if err != nil {
		return fmt.Errorf("subscribe audio frames: %w", err)
	}
	s.sub = sub
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for uid, state := range s.devices {
		if err := state.engine.Close(); err != nil {
			s.log.Warn("close vad engine", slog.String("device_uid", uid), slog.String("error", err.Error()))
		}
		delete(s.devices, uid)
	}
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.log.Warn("failed to decode audio frame", slog.String("error", err.Error()))
		return
	}
	if frame.Final {
		s.finishStream(frame.DeviceUID)
		return
	}
	samples, err := audio.DecodeFrame(frame.WAV)
	if err != nil {
		s.log.Warn("failed to decode frame payload", slog.String("error", err.Error()))
		return
	}
	if err := s.Observe(frame.DeviceUID, samples); err != nil {
		s.log.Warn("vad probe failed", slog.String("device_uid", frame.DeviceUID), slog.String("error", err.Error()))
	}
}

// Observe runs one chunk through the device's detector and publishes edge
// transitions.
func (s *Service) Observe(deviceUID string, samples []int16) error {
	s.mu.Lock()
	state, ok := s.devices[deviceUID]
	if !ok {
		engine, err := s.factory()
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("create vad engine: %w", err)
		}
		state = &deviceState{engine: engine}
		s.devices[deviceUID] = state
	}
	s.mu.Unlock()

	result, err := state.engine.ProcessChunk(samples, s.sampleRate)
	if err != nil {
		return err
	}
	chunkMS := len(samples) * 1000 / s.sampleRate

	s.mu.Lock()
	defer s.mu.Unlock()

	if result.IsSpeech {
		state.silenceMS = 0
		state.speechMS += chunkMS
		if !state.speaking && state.speechMS >= s.cfg.MinSpeechMS {
			state.speaking = true
			s.publish(protocol.SubjectVadUp, deviceUID)
		}
		return nil
	}

	state.speechMS = 0
	if state.speaking {
		state.silenceMS += chunkMS
		if state.silenceMS >= s.cfg.MinSilenceMS {
			state.speaking = false
			state.silenceMS = 0
			s.publish(protocol.SubjectVadDown, deviceUID)
		}
	}
	return nil
}

// finishStream emits a trailing vad.down when a stream ends mid-speech and
// resets the device's detector for the next capture.
func (s *Service) finishStream(deviceUID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.devices[deviceUID]
	if !ok {
		return
	}
	if state.speaking {
		state.speaking = false
		s.publish(protocol.SubjectVadDown, deviceUID)
	}
	state.speechMS = 0
	state.silenceMS = 0
	if err := state.engine.Reset(); err != nil {
		s.log.Warn("reset vad engine", slog.String("device_uid", deviceUID), slog.String("error", err.Error()))
	}
}

func (s *Service) publishEdge(subject, deviceUID string) {
	msg := protocol.VadSignal{DeviceUID: deviceUID, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Warn("failed to marshal vad signal", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.log.Warn("failed to publish vad signal", slog.String("error", err.Error()))
	}
}
