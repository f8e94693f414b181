package indiserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of the supervised process.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusFailed  Status = "failed"
)

const (
	// DefaultRestartDelay is the fixed wait before restarting indiserver.
	DefaultRestartDelay = 5 * time.Second

	// DefaultGracefulTimeout is how long indiserver gets to exit after SIGTERM.
	DefaultGracefulTimeout = 10 * time.Second

	// maxLineLength bounds a buffered output line.
	maxLineLength = 4096
)

// ErrNotRunning is returned by HealthCheck while indiserver is not running.
var ErrNotRunning = errors.New("indiserver: not running")

// Config holds supervisor configuration.
type Config struct {
	// Binary is the indiserver executable, looked up in PATH if not absolute.
	Binary string

	// Port is passed to indiserver as -p.
	Port int

	// Drivers are the driver executables indiserver loads.
	Drivers []string

	// RestartDelay is the wait after indiserver exits before starting it again.
	// Default: DefaultRestartDelay.
	RestartDelay time.Duration

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	// Default: DefaultGracefulTimeout.
	GracefulTimeout time.Duration
}

// Args returns the indiserver command line arguments.
func (c Config) Args() []string {
	args := make([]string, 0, 2+len(c.Drivers))
	args = append(args, "-p", strconv.Itoa(c.Port))
	return append(args, c.Drivers...)
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Stats holds supervisor statistics.
type Stats struct {
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// Supervisor runs indiserver and restarts it when it exits.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu        sync.RWMutex
	cmd       *exec.Cmd
	status    Status
	restarts  int
	lastError error
	startTime time.Time
}

// New creates a supervisor. Nothing is started until Run is called.
func New(cfg Config, logger Logger) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = DefaultGracefulTimeout
	}
	return &Supervisor{
		cfg:    cfg,
		logger: logger,
		status: StatusStopped,
	}
}

// Run starts indiserver and keeps it running until ctx is cancelled, then
// stops it.
//
// Returns:
//   - error: If the first start fails (for example a missing binary);
//     nil after ctx is cancelled
func (s *Supervisor) Run(ctx context.Context) error {
	cmd, exited, err := s.start()
	if err != nil {
		s.setFailed(err)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.stop(cmd, exited)
			return nil
		case err := <-exited:
			if err == nil {
				err = errors.New("exited with status 0")
			}
			s.logger.Warn("indiserver exited unexpectedly", "error", err)
			s.setFailed(err)
		}

		for {
			s.logger.Info("restarting indiserver", "delay", s.cfg.RestartDelay)
			timer := time.NewTimer(s.cfg.RestartDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				s.setStatus(StatusStopped)
				return nil
			case <-timer.C:
			}

			s.mu.Lock()
			s.restarts++
			s.mu.Unlock()

			cmd, exited, err = s.start()
			if err == nil {
				break
			}
			s.logger.Error("failed to restart indiserver", "error", err)
			s.setFailed(err)
		}
	}
}

// start launches indiserver in its own process group. The returned channel
// receives the Wait result.
func (s *Supervisor) start() (*exec.Cmd, <-chan error, error) {
	args := s.cfg.Args()
	s.logger.Info("starting indiserver", "binary", s.cfg.Binary, "args", args)

	cmd := exec.Command(s.cfg.Binary, args...) //nolint:gosec // Binary and drivers come from the operator's config file
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = &lineLogger{logger: s.logger, stream: "stdout"}
	cmd.Stderr = &lineLogger{logger: s.logger, stream: "stderr"}
	// Drivers inherit the output pipes; do not wait on them forever.
	cmd.WaitDelay = s.cfg.GracefulTimeout

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting indiserver: %w", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.status = StatusRunning
	s.startTime = time.Now()
	s.mu.Unlock()

	s.logger.Info("indiserver started", "pid", cmd.Process.Pid)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()
	return cmd, exited, nil
}

// stop sends SIGTERM to the process group, then SIGKILL if indiserver has
// not exited within the grace period.
func (s *Supervisor) stop(cmd *exec.Cmd, exited <-chan error) {
	pid := cmd.Process.Pid
	s.logger.Info("stopping indiserver", "pid", pid)

	// Negative PID signals the whole group, drivers included.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("failed to send SIGTERM", "error", err)
	}

	select {
	case <-exited:
		s.logger.Info("indiserver stopped")
	case <-time.After(s.cfg.GracefulTimeout):
		s.logger.Warn("graceful shutdown timeout, sending SIGKILL", "timeout", s.cfg.GracefulTimeout)
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			s.logger.Error("failed to kill indiserver", "error", err)
		}
		<-exited
		s.logger.Info("indiserver killed")
	}

	s.setStatus(StatusStopped)
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Supervisor) setFailed(err error) {
	s.mu.Lock()
	s.status = StatusFailed
	s.lastError = err
	s.mu.Unlock()
}

// Status returns the current process status.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Stats returns current statistics for the process.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Status:   s.status,
		Restarts: s.restarts,
	}
	if s.status == StatusRunning && s.cmd != nil && s.cmd.Process != nil {
		stats.PID = s.cmd.Process.Pid
		stats.Uptime = time.Since(s.startTime)
	}
	if s.lastError != nil {
		stats.LastError = s.lastError.Error()
	}
	return stats
}

// HealthCheck reports ErrNotRunning unless indiserver is running.
func (s *Supervisor) HealthCheck(_ context.Context) error {
	if st := s.Status(); st != StatusRunning {
		return fmt.Errorf("%w: %s", ErrNotRunning, st)
	}
	return nil
}

// lineLogger forwards process output to the logger one line at a time.
// exec copies each stream from its own goroutine, so no locking is needed.
type lineLogger struct {
	logger Logger
	stream string
	buf    []byte
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLineLength {
		w.emit(w.buf)
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

func (w *lineLogger) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	w.logger.Debug("indiserver output", "stream", w.stream, "line", string(line))
}
