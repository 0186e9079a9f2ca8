package kubefwd

import (
	"context"
	"fmt"
	"log"
	"time"
)

// State describes the supervisor's view of the forwarder.
type State string

const (
	// StateStopped means no record exists.
	StateStopped State = "stopped"

	// StateRunning means the recorded process is alive.
	StateRunning State = "running"

	// StateStoppedFailed means a record exists but the process is gone.
	StateStoppedFailed State = "stopped (process died)"
)

// defaultStartGrace is how long a fresh forwarder gets to prove it did not
// exit immediately, e.g. on a bad kube context.
const defaultStartGrace = 500 * time.Millisecond

// Supervisor drives the forwarder's lifecycle through the record store and
// the process launcher.
type Supervisor struct {
	store    Store
	launcher Launcher

	// StartGrace bounds the post-start liveness check.
	StartGrace time.Duration
}

// New creates a Supervisor.
func New(store Store, launcher Launcher) *Supervisor {
	return &Supervisor{store: store, launcher: launcher, StartGrace: defaultStartGrace}
}

// Start launches the forwarder. A recorded, live forwarder makes this a
// no-op; a stale record is cleared first.
func (s *Supervisor) Start(ctx context.Context) error {
	record, err := s.store.Load()
	if err != nil {
		return err
	}

	if record != nil {
		if s.launcher.Alive(record.PID) {
			log.Printf("kubefwd is already running (pid %d, log: %s)", record.PID, record.LogFile)
			return nil
		}
		log.Printf("Clearing stale forwarder record (pid %d is gone)", record.PID)
		if err := s.store.Clear(); err != nil {
			return err
		}
	}

	logPath := s.store.LogPath()
	pid, err := s.launcher.Start(ctx, logPath)
	if err != nil {
		return err
	}

	if err := s.store.Save(Record{PID: pid, LogFile: logPath, StartedAt: time.Now().UTC()}); err != nil {
		return err
	}

	time.Sleep(s.StartGrace)
	if !s.launcher.Alive(pid) {
		if err := s.store.Clear(); err != nil {
			return err
		}
		return fmt.Errorf("kubefwd exited immediately (check %s)", logPath)
	}

	log.Printf("kubefwd started in background (pid %d, log: %s)", pid, logPath)
	return nil
}

// Stop terminates the recorded forwarder. No record means already stopped;
// a dead recorded process clears the record with a warning, not an error.
func (s *Supervisor) Stop(ctx context.Context) error {
	record, err := s.store.Load()
	if err != nil {
		return err
	}
	if record == nil {
		log.Printf("kubefwd is not running")
		return nil
	}

	if !s.launcher.Alive(record.PID) {
		log.Printf("Recorded forwarder process %d is already gone, clearing record", record.PID)
		return s.store.Clear()
	}

	log.Printf("Stopping kubefwd (pid %d)...", record.PID)
	if err := s.launcher.Terminate(ctx, record.PID); err != nil {
		return err
	}
	if err := s.store.Clear(); err != nil {
		return err
	}

	log.Printf("kubefwd stopped")
	return nil
}

// Refresh restarts the forwarder to pick up new services. A failing stop
// does not block the start.
func (s *Supervisor) Refresh(ctx context.Context) error {
	log.Printf("Refreshing kubefwd...")
	if err := s.Stop(ctx); err != nil {
		log.Printf("Warning: failed to stop kubefwd cleanly: %v", err)
	}
	return s.Start(ctx)
}

// Status reports the forwarder's current state and record, if any.
func (s *Supervisor) Status() (State, *Record, error) {
	record, err := s.store.Load()
	if err != nil {
		return StateStopped, nil, err
	}
	if record == nil {
		return StateStopped, nil, nil
	}
	if s.launcher.Alive(record.PID) {
		return StateRunning, record, nil
	}
	return StateStoppedFailed, record, nil
}
