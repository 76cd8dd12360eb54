package asr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-asr/internal/config"
	"github.com/loqalabs/loqa-asr/internal/subprocess"
)

// delegatedProcessName identifies the supervised recognizer instance.
const delegatedProcessName = "delegated-asr"

// delegatedPollInterval bounds how long a blocked decode call can lag a
// toggle-off in the degenerate case; the toggle channel normally wakes it
// immediately.
const delegatedPollInterval = 100 * time.Millisecond

// delegatedLanguage is the only operating language the generic external
// recognizer ships a model for.
const delegatedLanguage = "en"

// DelegatedEngine hands recognition to an always-on external process.
// Transcripts reach the dialog layer out-of-band through the broker; the
// decode call here only tracks listening intent and never returns a result.
type DelegatedEngine struct {
	cfg        config.DelegatedConfig
	language   string
	toggle     *ListeningToggle
	supervisor *subprocess.Supervisor
	units      subprocess.UnitRunner
	log        *slog.Logger
}

func NewDelegatedEngine(cfg config.DelegatedConfig, language string, supervisor *subprocess.Supervisor, log *slog.Logger) *DelegatedEngine {
	return &DelegatedEngine{
		cfg:        cfg,
		language:   language,
		toggle:     NewListeningToggle(),
		supervisor: supervisor,
		units:      subprocess.SystemctlRunner,
		log:        log.With(slog.String("component", "asr-delegated")),
	}
}

// Start launches the supervised recognizer. The language check is fatal:
// starting under any language the external model cannot serve must fail
// here, never misbehave silently at decode time.
func (e *DelegatedEngine) Start(ctx context.Context) error {
	if e.language != delegatedLanguage {
		return fmt.Errorf("%w: %s (delegated engine is %s only)", ErrUnsupportedLanguage, e.language, delegatedLanguage)
	}

	subprocess.DisableConflictingUnit(e.units, e.cfg.ConflictingUnit, e.log)

	command := DelegatedCommand(e.cfg)
	opts := subprocess.Options{
		AutoRestart:    e.cfg.AutoRestart,
		MaxRestarts:    e.cfg.MaxRestarts,
		RestartBackoff: time.Duration(e.cfg.RestartBackoffMS) * time.Millisecond,
	}
	if err := e.supervisor.Start(delegatedProcessName, command, opts); err != nil {
		return fmt.Errorf("start delegated recognizer: %w", err)
	}
	e.log.Info("delegated engine started", slog.String("binary", e.cfg.Binary))
	return nil
}

func (e *DelegatedEngine) Stop() {
	if err := e.supervisor.Stop(delegatedProcessName); err != nil {
		e.log.Warn("stop delegated recognizer", slog.String("error", err.Error()))
	}
}

// DecodeStream blocks until the device's listening intent flips off. It
// never yields a result; the external process pushes transcripts to the
// broker itself.
func (e *DelegatedEngine) DecodeStream(ctx context.Context, session *Session) (*Result, error) {
	session.State = StateRecording
	defer func() { session.State = StateDone }()

	for e.toggle.Listening(session.DeviceUID) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.toggle.Off(session.DeviceUID):
		case <-time.After(delegatedPollInterval):
		}
	}
	return nil, nil
}

func (e *DelegatedEngine) OnVadUp()   {}
func (e *DelegatedEngine) OnVadDown() {}

func (e *DelegatedEngine) OnStartListening(session *Session) {
	e.toggle.StartListening(session.DeviceUID)
}

func (e *DelegatedEngine) OnToggleOff(deviceUID string) {
	e.toggle.ToggleOff(deviceUID)
}

// DelegatedCommand builds the recognizer's full command line. Pure
// construction, no side effects; the supervised launch is separate.
func DelegatedCommand(cfg config.DelegatedConfig) string {
	cmd := fmt.Sprintf("%s --assistant %s --mqtt %s:%d", cfg.Binary, cfg.AssistantDir, cfg.BrokerHost, cfg.BrokerPort)
	if cfg.BrokerUsername != "" {
		cmd += fmt.Sprintf(" --mqtt-username %s --mqtt-password %s", cfg.BrokerUsername, cfg.BrokerPassword)
	}
	if cfg.BrokerTLSFile != "" {
		cmd += fmt.Sprintf(" --mqtt-tls-cafile %s", cfg.BrokerTLSFile)
	}
	cmd += fmt.Sprintf(" --model %s", cfg.ModelDir)
	if cfg.Partial {
		cmd += " --partial"
	}
	return cmd
}
