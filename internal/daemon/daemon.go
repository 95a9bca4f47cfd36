package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrAlreadyRunning is returned when another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("indexgen daemon is already running")

// ErrShutdownTimeout is returned when components outlive the grace period.
var ErrShutdownTimeout = errors.New("components did not stop within the grace period")

// RunFunc runs a component until ctx is cancelled.
type RunFunc func(ctx context.Context) error

type component struct {
	name string
	run  RunFunc
}

// Daemon supervises named components. The first component to fail cancels
// the others.
type Daemon struct {
	cfg        Config
	lock       *InstanceLock
	pid        *PIDFile
	components []component
	closers    []func() error
}

// New creates a daemon for cfg.
func New(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Daemon{
		cfg:  cfg,
		lock: NewInstanceLock(cfg.LockPath),
		pid:  NewPIDFile(cfg.PIDPath),
	}, nil
}

// Add registers a component.
func (d *Daemon) Add(name string, run RunFunc) {
	d.components = append(d.components, component{name: name, run: run})
}

// OnShutdown registers fn to run after every component has stopped, in
// reverse registration order.
func (d *Daemon) OnShutdown(fn func() error) {
	d.closers = append(d.closers, fn)
}

// Run acquires the instance lock, writes the PID file and runs every
// component until ctx is cancelled, SIGINT or SIGTERM arrives, or a
// component fails.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() { _ = d.lock.Unlock() }()

	if err := d.pid.Write(); err != nil {
		return err
	}
	defer func() { _ = d.pid.Remove() }()
	defer d.close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range d.components {
		g.Go(func() error {
			slog.Info("component starting", slog.String("component", c.name))
			err := c.run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("component failed",
					slog.String("component", c.name),
					slog.String("error", err.Error()))
				return fmt.Errorf("%s: %w", c.name, err)
			}
			slog.Info("component stopped", slog.String("component", c.name))
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-gctx.Done():
	}

	slog.Info("shutting down", slog.Duration("grace_period", d.cfg.ShutdownGracePeriod))
	select {
	case err := <-done:
		return err
	case <-time.After(d.cfg.ShutdownGracePeriod):
		return ErrShutdownTimeout
	}
}

func (d *Daemon) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			slog.Warn("shutdown hook failed", slog.String("error", err.Error()))
		}
	}
}

// Status describes a daemon as seen from another process.
type Status struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	PIDPath string `json:"pid_path"`
}

// ReadStatus inspects the PID file of cfg.
func ReadStatus(cfg Config) Status {
	pf := NewPIDFile(cfg.PIDPath)
	st := Status{PIDPath: cfg.PIDPath}
	if pid, err := pf.Read(); err == nil && processExists(pid) {
		st.Running = true
		st.PID = pid
	}
	return st
}

// Stop sends SIGTERM to the running daemon and waits up to timeout for it
// to exit. It returns ErrPIDFileNotFound when no daemon is running.
func Stop(cfg Config, timeout time.Duration) (int, error) {
	pf := NewPIDFile(cfg.PIDPath)
	if !pf.IsRunning() {
		return 0, ErrPIDFileNotFound
	}
	pid, err := pf.Read()
	if err != nil {
		return 0, err
	}
	if err := pf.Signal(syscall.SIGTERM); err != nil {
		return pid, err
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processExists(pid) {
			return pid, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return pid, fmt.Errorf("daemon (pid %d) did not exit within %s", pid, timeout)
}
