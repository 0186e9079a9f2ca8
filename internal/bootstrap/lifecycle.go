package bootstrap

import (
	"context"
	"log"

	"github.com/charmbracelet/huh"

	"github.com/hops-ops/hops/internal/util/execx"
)

// confirmUninstall asks before removing the colima binary. Swapped out in
// tests.
var confirmUninstall = func() (bool, error) {
	var confirmed bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Uninstall colima?").
			Description("This removes the binary; VM state is kept until destroyed.").
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}

// Stop halts the VM, preserving cluster state.
func (b *Bootstrapper) Stop(ctx context.Context) error {
	log.Printf("Stopping colima...")
	if err := b.vm.Stop(ctx); err != nil {
		return err
	}
	log.Printf("Colima stopped")
	return nil
}

// Destroy deletes the VM and everything in it.
func (b *Bootstrapper) Destroy(ctx context.Context) error {
	log.Printf("Destroying colima VM...")
	if err := b.vm.Delete(ctx); err != nil {
		return err
	}
	log.Printf("Colima VM destroyed")
	return nil
}

// Reset wipes the embedded cluster while keeping the VM and its images.
func (b *Bootstrapper) Reset(ctx context.Context) error {
	log.Printf("Resetting colima Kubernetes...")
	if err := b.vm.KubernetesReset(ctx); err != nil {
		return err
	}
	log.Printf("Colima Kubernetes reset complete")
	return nil
}

// Install installs the host tools through Homebrew.
func (b *Bootstrapper) Install(ctx context.Context) error {
	log.Printf("Installing colima and kubefwd via Homebrew...")
	if err := execx.Run(ctx, "brew", "install", "colima", "kubefwd"); err != nil {
		return err
	}
	log.Printf("Colima and kubefwd installed successfully")
	return nil
}

// Uninstall removes the colima binary after confirmation.
func (b *Bootstrapper) Uninstall(ctx context.Context) error {
	confirmed, err := confirmUninstall()
	if err != nil {
		return err
	}
	if !confirmed {
		log.Printf("Uninstall cancelled")
		return nil
	}

	log.Printf("Uninstalling colima...")
	if err := execx.Run(ctx, "brew", "uninstall", "colima"); err != nil {
		return err
	}
	log.Printf("Colima uninstalled")
	return nil
}
