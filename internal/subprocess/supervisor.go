package subprocess

import (
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-shellwords"
)

// State describes the health of a supervised process.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateCrashed  State = "crashed"
	StateStopped  State = "stopped"
)

// Event reports a lifecycle transition for observability.
type Event struct {
	Name     string
	State    State
	PID      int
	Restarts int
	Err      error
}

// Options bounds restart behaviour. Unbounded immediate restart loops
// against a crashing binary are an operational hazard, so MaxRestarts and
// RestartBackoff always apply when AutoRestart is on; MaxRestarts <= 0
// means unlimited attempts but still backs off.
type Options struct {
	AutoRestart    bool
	MaxRestarts    int
	RestartBackoff time.Duration
}

const stopGrace = 5 * time.Second

// Supervisor owns the lifetime of long-lived helper processes: launch,
// health monitoring, bounded auto-restart, and termination on shutdown.
type Supervisor struct {
	log    *slog.Logger
	events func(Event)

	mu    sync.Mutex
	procs map[string]*process
	wg    sync.WaitGroup
}

type process struct {
	name string
	argv []string
	opts Options

	mu       sync.Mutex
	state    State
	restarts int
	cmd      *exec.Cmd
	stopping bool
	stop     chan struct{}
	done     chan struct{}
}

// New creates a supervisor. events may be nil; when set it is invoked
// synchronously from the monitor goroutine and must not block.
func New(log *slog.Logger, events func(Event)) *Supervisor {
	return &Supervisor{
		log:    log.With(slog.String("component", "subprocess")),
		events: events,
		procs:  make(map[string]*process),
	}
}

// Start launches a named process and begins monitoring it.
func (s *Supervisor) Start(name, command string, opts Options) error {
	parser := shellwords.NewParser()
	argv, err := parser.Parse(command)
	if err != nil {
		return fmt.Errorf("parse command for %s: %w", name, err)
	}
	if len(argv) == 0 {
		return fmt.Errorf("empty command for %s", name)
	}

	s.mu.Lock()
	if _, exists := s.procs[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("process %s already supervised", name)
	}
	p := &process{
		name:  name,
		argv:  argv,
		opts:  opts,
		state: StateStarting,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	s.procs[name] = p
	s.mu.Unlock()

	if err := s.launch(p); err != nil {
		s.mu.Lock()
		delete(s.procs, name)
		s.mu.Unlock()
		close(p.done)
		return err
	}

	s.wg.Add(1)
	go s.monitor(p)
	return nil
}

func (s *Supervisor) launch(p *process) error {
	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	if err := cmd.Start(); err != nil {
		p.setState(StateCrashed)
		return fmt.Errorf("start %s: %w", p.name, err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.state = StateRunning
	restarts := p.restarts
	p.mu.Unlock()

	s.log.Info("subprocess started",
		slog.String("name", p.name),
		slog.Int("pid", cmd.Process.Pid),
		slog.Int("restarts", restarts))
	s.emit(Event{Name: p.name, State: StateRunning, PID: cmd.Process.Pid, Restarts: restarts})
	return nil
}

func (s *Supervisor) monitor(p *process) {
	defer s.wg.Done()
	defer close(p.done)

	for {
		p.mu.Lock()
		cmd := p.cmd
		p.mu.Unlock()

		err := cmd.Wait()

		p.mu.Lock()
		stopping := p.stopping
		p.mu.Unlock()

		if stopping {
			p.setState(StateStopped)
			s.log.Info("subprocess stopped", slog.String("name", p.name))
			s.emit(Event{Name: p.name, State: StateStopped, Restarts: p.restartCount()})
			return
		}

		p.setState(StateCrashed)
		s.emit(Event{Name: p.name, State: StateCrashed, Restarts: p.restartCount(), Err: err})

		if !p.opts.AutoRestart {
			s.log.Error("subprocess exited unexpectedly",
				slog.String("name", p.name),
				slog.String("error", errString(err)))
			return
		}
		if p.opts.MaxRestarts > 0 && p.restartCount() >= p.opts.MaxRestarts {
			s.log.Error("subprocess crash loop, giving up",
				slog.String("name", p.name),
				slog.Int("restarts", p.restartCount()))
			return
		}

		select {
		case <-p.stop:
			p.setState(StateStopped)
			return
		case <-time.After(p.opts.RestartBackoff):
		}

		p.mu.Lock()
		p.restarts++
		p.mu.Unlock()

		s.log.Warn("restarting subprocess",
			slog.String("name", p.name),
			slog.Int("attempt", p.restartCount()),
			slog.String("error", errString(err)))
		if err := s.launch(p); err != nil {
			s.log.Error("subprocess relaunch failed",
				slog.String("name", p.name),
				slog.String("error", err.Error()))
			return
		}
	}
}

// Stop terminates a supervised process and disables its auto-restart.
func (s *Supervisor) Stop(name string) error {
	s.mu.Lock()
	p, ok := s.procs[name]
	if ok {
		delete(s.procs, name)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("process %s not supervised", name)
	}

	p.mu.Lock()
	p.stopping = true
	cmd := p.cmd
	p.mu.Unlock()
	close(p.stop)

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-p.done:
		case <-time.After(stopGrace):
			_ = cmd.Process.Kill()
			<-p.done
		}
	}
	return nil
}

// Status reports the current health state and restart count of a process.
func (s *Supervisor) Status(name string) (State, int, bool) {
	s.mu.Lock()
	p, ok := s.procs[name]
	s.mu.Unlock()
	if !ok {
		return StateStopped, 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.restarts, true
}

// Close stops every supervised process and waits for monitors to drain.
func (s *Supervisor) Close() {
	s.mu.Lock()
	names := make([]string, 0, len(s.procs))
	for name := range s.procs {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		if err := s.Stop(name); err != nil {
			s.log.Warn("stop subprocess", slog.String("name", name), slog.String("error", err.Error()))
		}
	}
	s.wg.Wait()
}

func (s *Supervisor) emit(evt Event) {
	if s.events == nil {
		return
	}
	s.events(evt)
}

func (p *process) setState(state State) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *process) restartCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restarts
}

func errString(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}
