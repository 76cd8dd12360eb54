package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-asr/internal/asr"
	"github.com/loqalabs/loqa-asr/internal/bus"
	"github.com/loqalabs/loqa-asr/internal/config"
	"github.com/loqalabs/loqa-asr/internal/eventstore"
	"github.com/loqalabs/loqa-asr/internal/natsserver"
	"github.com/loqalabs/loqa-asr/internal/protocol"
	"github.com/loqalabs/loqa-asr/internal/subprocess"
	"github.com/loqalabs/loqa-asr/internal/vad"
)

// Runtime assembles and supervises all components of the recognition host.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	bus        *bus.Client
	asrService *asr.Service
	vadService *vad.Service
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()
	r.bus = busClient

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer store.Close()

	supervisor := subprocess.New(r.logger, r.processEventSink(ctx, busClient, store))
	defer supervisor.Close()

	registry := asr.NewRegistry()

	// The orchestration service doubles as the engine's partial-text
	// notifier; the indirection breaks the construction cycle.
	var asrService *asr.Service
	notifier := asr.NotifierFunc(func(session *asr.Session, text string, likelihood, seconds float64) {
		if asrService != nil {
			asrService.PartialTextCaptured(session, text, likelihood, seconds)
		}
	})

	engine, err := r.buildEngine(notifier, registry, supervisor)
	if err != nil {
		return fmt.Errorf("failed to build %s engine: %w", r.cfg.ASR.Engine, err)
	}
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s engine: %w", r.cfg.ASR.Engine, err)
	}
	defer engine.Stop()

	asrService = asr.NewService(ctx, r.cfg.ASR, busClient, engine, registry, store, r.logger)
	if err := asrService.Start(); err != nil {
		return fmt.Errorf("failed to start asr service: %w", err)
	}
	defer asrService.Close()
	r.asrService = asrService

	vadService := vad.NewService(ctx, r.cfg.VAD, r.cfg.ASR.SampleRate, busClient,
		vad.SileroFactory(r.cfg.VAD, r.cfg.ASR.SampleRate), r.logger)
	if err := vadService.Start(); err != nil {
		return fmt.Errorf("failed to start vad service: %w", err)
	}
	defer vadService.Close()
	r.vadService = vadService

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("engine", r.cfg.ASR.Engine))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildEngine(notifier asr.Notifier, registry *asr.Registry, supervisor *subprocess.Supervisor) (asr.Engine, error) {
	switch r.cfg.ASR.Engine {
	case "mock":
		return asr.NewEmbeddedEngine(r.cfg.ASR, asr.NewMockModel(), registry, notifier, r.logger), nil
	case "embedded":
		model, err := asr.NewExecModel(r.cfg.ASR)
		if err != nil {
			return nil, err
		}
		return asr.NewEmbeddedEngine(r.cfg.ASR, model, registry, notifier, r.logger), nil
	case "delegated":
		return asr.NewDelegatedEngine(r.cfg.Delegated, r.cfg.ASR.Language, supervisor, r.logger), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", r.cfg.ASR.Engine)
	}
}

// processEventSink forwards subprocess lifecycle transitions to the bus and
// the event store.
func (r *Runtime) processEventSink(ctx context.Context, busClient *bus.Client, store *eventstore.Store) func(subprocess.Event) {
	return func(evt subprocess.Event) {
		msg := protocol.ProcessEvent{
			Name:      evt.Name,
			State:     string(evt.State),
			PID:       evt.PID,
			Restarts:  evt.Restarts,
			Timestamp: time.Now().UTC(),
		}
		if evt.Err != nil {
			msg.Error = evt.Err.Error()
		}
		if data, err := json.Marshal(msg); err == nil {
			if err := busClient.Conn().Publish(protocol.SubjectProcessLifecycle, data); err != nil {
				r.logger.Warn("failed to publish process event", slog.String("error", err.Error()))
			}
		}
		if err := store.AppendProcessEvent(ctx, eventstore.ProcessEvent{
			Name:     evt.Name,
			State:    string(evt.State),
			PID:      evt.PID,
			Restarts: evt.Restarts,
			Error:    msg.Error,
		}); err != nil {
			r.logger.Warn("failed to record process event", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.bus.Healthy() && r.asrService.Healthy() && r.vadService.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
