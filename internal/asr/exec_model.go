package asr

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/loqalabs/loqa-asr/internal/audio"
	"github.com/loqalabs/loqa-asr/internal/config"
	"github.com/mattn/go-shellwords"
)

// execModel drives a streaming acoustic-model subprocess speaking
// line-delimited JSON on stdin/stdout. One subprocess per stream; the
// process exits after finish.
type execModel struct {
	cmd []string
}

type execModelRequest struct {
	Op        string `json:"op"` // feed, intermediate, finish
	PCMBase64 string `json:"pcm_base64,omitempty"`
}

type execModelResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewExecModel parses the configured command line and verifies the binary
// can be resolved. Model loading happens inside the subprocess; a missing
// binary is the fatal model-load failure surfaced at engine startup.
func NewExecModel(cfg config.ASRConfig) (Model, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse asr command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("asr command is empty")
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, fmt.Errorf("resolve asr model binary: %w", err)
	}
	if cfg.ModelPath != "" {
		args = append(args, "--model", cfg.ModelPath)
	}
	if cfg.ScorerPath != "" {
		args = append(args, "--scorer", cfg.ScorerPath)
	}
	if cfg.Language != "" {
		args = append(args, "--language", cfg.Language)
	}
	return &execModel{cmd: args}, nil
}

func (m *execModel) CreateStream() (Stream, error) {
	cmd := exec.Command(m.cmd[0], m.cmd[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open model stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open model stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start model process: %w", err)
	}
	return &execStream{
		cmd:    cmd,
		stdin:  stdin,
		reader: bufio.NewScanner(stdout),
	}, nil
}

func (m *execModel) Close() error { return nil }

type execStream struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	reader   *bufio.Scanner
	finished bool
}

func (s *execStream) FeedAudio(chunk []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return fmt.Errorf("stream already finished")
	}
	req := execModelRequest{
		Op:        "feed",
		PCMBase64: base64.StdEncoding.EncodeToString(audio.Bytes(chunk)),
	}
	return s.send(req)
}

func (s *execStream) IntermediateDecode() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return "", fmt.Errorf("stream already finished")
	}
	if err := s.send(execModelRequest{Op: "intermediate"}); err != nil {
		return "", err
	}
	return s.receive()
}

func (s *execStream) FinishStream() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return "", fmt.Errorf("stream already finished")
	}
	s.finished = true
	if err := s.send(execModelRequest{Op: "finish"}); err != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
		return "", err
	}
	text, err := s.receive()
	s.stdin.Close()
	if waitErr := s.cmd.Wait(); waitErr != nil && err == nil {
		err = fmt.Errorf("model process exit: %w", waitErr)
	}
	return text, err
}

func (s *execStream) send(req execModelRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := s.stdin.Write(data); err != nil {
		return fmt.Errorf("write to model process: %w", err)
	}
	return nil
}

func (s *execStream) receive() (string, error) {
	if !s.reader.Scan() {
		if err := s.reader.Err(); err != nil {
			return "", fmt.Errorf("read model response: %w", err)
		}
		return "", fmt.Errorf("model process closed its stdout")
	}
	var resp execModelResponse
	if err := json.Unmarshal(s.reader.Bytes(), &resp); err != nil {
		return "", fmt.Errorf("decode model response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("model error: %s", resp.Error)
	}
	return resp.Text, nil
}
