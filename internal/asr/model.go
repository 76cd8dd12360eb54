package asr

import (
	"fmt"
	"strings"
	"sync"
)

// Model abstracts a stateful acoustic-model capability. Each recognition
// pass gets its own Stream; cross-session stream reuse is forbidden.
type Model interface {
	CreateStream() (Stream, error)
	Close() error
}

// Stream is the per-session mutable decode state. FinishStream is terminal:
// it yields the final transcript and invalidates the stream.
type Stream interface {
	FeedAudio(chunk []int16) error
	IntermediateDecode() (string, error)
	FinishStream() (string, error)
}

// mockModel produces deterministic transcripts for development and tests:
// any chunk with a non-zero sample counts as speech.
type mockModel struct{}

func NewMockModel() Model {
	return mockModel{}
}

func (mockModel) CreateStream() (Stream, error) {
	return &mockStream{}, nil
}

func (mockModel) Close() error { return nil }

type mockStream struct {
	mu       sync.Mutex
	words    []string
	finished bool
}

func (s *mockStream) FeedAudio(chunk []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return fmt.Errorf("stream already finished")
	}
	for _, sample := range chunk {
		if sample != 0 {
			s.words = append(s.words, fmt.Sprintf("chunk%d", len(s.words)+1))
			break
		}
	}
	return nil
}

func (s *mockStream) IntermediateDecode() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return "", fmt.Errorf("stream already finished")
	}
	return strings.Join(s.words, " "), nil
}

func (s *mockStream) FinishStream() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return "", fmt.Errorf("stream already finished")
	}
	s.finished = true
	return strings.Join(s.words, " "), nil
}
