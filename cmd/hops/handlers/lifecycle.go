package handlers

import (
	"context"

	"github.com/hops-ops/hops/internal/colima"
	"github.com/hops-ops/hops/internal/util/prerequisites"
)

// StartOptions sizes the local cluster VM.
type StartOptions struct {
	CPUs      int
	MemoryGiB int
	DiskGiB   int

	// KubeconfigPath overrides the kubeconfig used to reach the cluster.
	KubeconfigPath string
}

// Start boots the VM and installs the full local control plane.
func Start(ctx context.Context, opts StartOptions) error {
	if err := checkTools(prerequisites.VMTools()); err != nil {
		return err
	}

	lifecycle, err := newLifecycle(opts.KubeconfigPath)
	if err != nil {
		return err
	}
	return lifecycle.Start(ctx, colima.StartOptions{
		CPUs:      opts.CPUs,
		MemoryGiB: opts.MemoryGiB,
		DiskGiB:   opts.DiskGiB,
	})
}

// Stop halts the VM.
func Stop(ctx context.Context) error {
	lifecycle, err := newLifecycle("")
	if err != nil {
		return err
	}
	return lifecycle.Stop(ctx)
}

// Destroy deletes the VM and all cluster state.
func Destroy(ctx context.Context) error {
	lifecycle, err := newLifecycle("")
	if err != nil {
		return err
	}
	return lifecycle.Destroy(ctx)
}

// Reset wipes the embedded cluster, keeping the VM.
func Reset(ctx context.Context) error {
	lifecycle, err := newLifecycle("")
	if err != nil {
		return err
	}
	return lifecycle.Reset(ctx)
}

// Install installs the host tools via Homebrew.
func Install(ctx context.Context) error {
	if err := checkTools(prerequisites.BrewTools()); err != nil {
		return err
	}

	lifecycle, err := newLifecycle("")
	if err != nil {
		return err
	}
	return lifecycle.Install(ctx)
}

// Uninstall removes the colima binary after confirmation.
func Uninstall(ctx context.Context) error {
	if err := checkTools(prerequisites.BrewTools()); err != nil {
		return err
	}

	lifecycle, err := newLifecycle("")
	if err != nil {
		return err
	}
	return lifecycle.Uninstall(ctx)
}
