// Package colima drives the colima VM that hosts the local Kubernetes
// cluster and its Docker daemon.
package colima

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hops-ops/hops/internal/util/execx"
)

// Default VM sizing for a cluster that runs Crossplane plus a handful of
// providers comfortably.
const (
	DefaultCPUs      = 8
	DefaultMemoryGiB = 16
	DefaultDiskGiB   = 60
)

// StartOptions sizes the VM. Zero values fall back to the defaults.
type StartOptions struct {
	CPUs      int
	MemoryGiB int
	DiskGiB   int
}

func (o StartOptions) withDefaults() StartOptions {
	if o.CPUs == 0 {
		o.CPUs = DefaultCPUs
	}
	if o.MemoryGiB == 0 {
		o.MemoryGiB = DefaultMemoryGiB
	}
	if o.DiskGiB == 0 {
		o.DiskGiB = DefaultDiskGiB
	}
	return o
}

// Runner wraps the colima CLI.
type Runner interface {
	// Start brings the VM up with Kubernetes enabled. Idempotent when the
	// VM is already running.
	Start(ctx context.Context, opts StartOptions) error

	// Stop halts the VM, preserving its state.
	Stop(ctx context.Context) error

	// Delete destroys the VM and all its state.
	Delete(ctx context.Context) error

	// KubernetesReset wipes the embedded cluster without touching images
	// or the VM itself.
	KubernetesReset(ctx context.Context) error

	// SSH runs a shell command inside the VM.
	SSH(ctx context.Context, command string) error

	// SSHOutput runs a shell command inside the VM and returns its output.
	SSHOutput(ctx context.Context, command string) (string, error)

	// SSHWithInput runs a shell command inside the VM with input piped to
	// its stdin.
	SSHWithInput(ctx context.Context, input, command string) error
}

type execRunner struct{}

// NewRunner creates the default CLI-backed runner.
func NewRunner() Runner {
	return execRunner{}
}

func (execRunner) Start(ctx context.Context, opts StartOptions) error {
	opts = opts.withDefaults()
	err := execx.Run(ctx, "colima", "start",
		"--kubernetes",
		"--cpu", strconv.Itoa(opts.CPUs),
		"--memory", strconv.Itoa(opts.MemoryGiB),
		"--disk", strconv.Itoa(opts.DiskGiB),
	)
	if err != nil {
		return fmt.Errorf("failed to start colima: %w", err)
	}
	return nil
}

func (execRunner) Stop(ctx context.Context) error {
	if err := execx.Run(ctx, "colima", "stop"); err != nil {
		return fmt.Errorf("failed to stop colima: %w", err)
	}
	return nil
}

func (execRunner) Delete(ctx context.Context) error {
	if err := execx.Run(ctx, "colima", "delete", "--force"); err != nil {
		return fmt.Errorf("failed to delete colima VM: %w", err)
	}
	return nil
}

func (execRunner) KubernetesReset(ctx context.Context) error {
	if err := execx.Run(ctx, "colima", "kubernetes", "reset"); err != nil {
		return fmt.Errorf("failed to reset colima kubernetes: %w", err)
	}
	return nil
}

func (execRunner) SSH(ctx context.Context, command string) error {
	return execx.Run(ctx, "colima", "ssh", "--", "sh", "-c", command)
}

func (execRunner) SSHOutput(ctx context.Context, command string) (string, error) {
	return execx.Output(ctx, "colima", "ssh", "--", "sh", "-c", command)
}

func (execRunner) SSHWithInput(ctx context.Context, input, command string) error {
	return execx.RunWithInput(ctx, input, "colima", "ssh", "--", "sh", "-c", command)
}
