package inference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/krushi/krushi-api/internal/config"
	"github.com/krushi/krushi-api/internal/logging"
)

// State is the lifecycle of the local inference subprocess.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "idle"
	}
}

// Supervisor owns the local inference subprocess. All transitions happen
// under mu, so at most one Start runs at a time.
type Supervisor struct {
	command string
	args    []string
	dir     string
	log     logging.Logger

	mu    sync.Mutex
	state State
	cmd   *exec.Cmd
	done  chan struct{}
}

// NewSupervisor returns nil when no local command is configured; all methods
// accept a nil receiver.
func NewSupervisor(cfg config.InferenceConfig, log logging.Logger) *Supervisor {
	if cfg.Command == "" {
		return nil
	}
	return &Supervisor{command: cfg.Command, args: cfg.Args, dir: cfg.Dir, log: log}
}

// Start launches the subprocess unless it is already starting or running.
func (s *Supervisor) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return nil
	}

	cmd := exec.Command(s.command, s.args...)
	cmd.Dir = s.dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start inference server: %w", err)
	}
	s.cmd = cmd
	s.state = StateStarting
	s.done = make(chan struct{})
	s.log.Info(ctx, "inference server starting", "pid", cmd.Process.Pid, "command", s.command)

	go s.wait(cmd, s.done)
	return nil
}

func (s *Supervisor) wait(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	s.mu.Lock()
	if s.cmd == cmd {
		s.cmd = nil
		s.state = StateIdle
	}
	s.mu.Unlock()
	close(done)

	if err != nil {
		s.log.Warn(context.Background(), "inference server exited", "error", err)
		return
	}
	s.log.Info(context.Background(), "inference server exited")
}

// MarkRunning records a successful probe of a process we started.
func (s *Supervisor) MarkRunning() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.state == StateStarting {
		s.state = StateRunning
	}
	s.mu.Unlock()
}

// Status returns the current state.
func (s *Supervisor) Status() State {
	if s == nil {
		return StateIdle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stop interrupts the subprocess and kills it if it has not exited when ctx
// is done.
func (s *Supervisor) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	cmd, done := s.cmd, s.done
	s.mu.Unlock()
	if cmd == nil {
		return nil
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal inference server: %w", err)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
		return ctx.Err()
	}
}
