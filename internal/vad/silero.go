package vad

import (
	"fmt"

	"github.com/loqalabs/loqa-asr/internal/config"
	"github.com/streamer45/silero-vad-go/speech"
)

type sileroEngine struct {
	detector *speech.Detector
}

// NewSileroEngine wraps a silero speech detector as a per-chunk probe.
func NewSileroEngine(cfg config.VADConfig, sampleRate int) (Engine, error) {
	detector, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            cfg.ModelPath,
		SampleRate:           sampleRate,
		Threshold:            cfg.Threshold,
		MinSilenceDurationMs: cfg.MinSilenceMS,
		SpeechPadMs:          30,
	})
	if err != nil {
		return nil, fmt.Errorf("create silero detector: %w", err)
	}
	return &sileroEngine{detector: detector}, nil
}

// SileroFactory returns a Factory producing independent detectors, one per
// device stream.
func SileroFactory(cfg config.VADConfig, sampleRate int) Factory {
	return func() (Engine, error) {
		return NewSileroEngine(cfg, sampleRate)
	}
}

func (e *sileroEngine) ProcessChunk(samples []int16, sampleRate int) (Result, error) {
	pcm := make([]float32, len(samples))
	for i, s := range samples {
		pcm[i] = float32(s) / 32768
	}
	segments, err := e.detector.Detect(pcm)
	if err != nil {
		return Result{}, fmt.Errorf("detect speech: %w", err)
	}
	return Result{IsSpeech: len(segments) > 0}, nil
}

func (e *sileroEngine) Reset() error {
	return e.detector.Reset()
}

func (e *sileroEngine) Close() error {
	return e.detector.Destroy()
}
