package handlers

import (
	"context"
	"log"

	"github.com/hops-ops/hops/internal/util/prerequisites"
)

// KubefwdStart launches the background service forwarder if it is not
// already running.
func KubefwdStart(ctx context.Context) error {
	if err := checkTools(prerequisites.ForwardTools()); err != nil {
		return err
	}

	supervisor, err := newSupervisor()
	if err != nil {
		return err
	}
	return supervisor.Start(ctx)
}

// KubefwdStop terminates the running forwarder, if any.
func KubefwdStop(ctx context.Context) error {
	supervisor, err := newSupervisor()
	if err != nil {
		return err
	}
	return supervisor.Stop(ctx)
}

// KubefwdRefresh restarts the forwarder so it picks up new services.
func KubefwdRefresh(ctx context.Context) error {
	if err := checkTools(prerequisites.ForwardTools()); err != nil {
		return err
	}

	supervisor, err := newSupervisor()
	if err != nil {
		return err
	}
	return supervisor.Refresh(ctx)
}

// KubefwdStatus reports the forwarder's current state.
func KubefwdStatus(context.Context) error {
	supervisor, err := newSupervisor()
	if err != nil {
		return err
	}

	state, record, err := supervisor.Status()
	if err != nil {
		return err
	}
	if record != nil {
		log.Printf("kubefwd is %s (pid %d, log: %s)", state, record.PID, record.LogFile)
		return nil
	}
	log.Printf("kubefwd is %s", state)
	return nil
}
