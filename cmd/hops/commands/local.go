package commands

import "github.com/spf13/cobra"

// kubeconfigPath is shared by every local subcommand through the persistent
// --kubeconfig flag.
var kubeconfigPath string

// Local returns the parent command for the local development environment.
//
// Subcommands manage the lifecycle of a colima-backed cluster and the
// Crossplane packages installed into it.
func Local() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Manage the local development cluster",
		Long: `Manage the local Crossplane development environment.

The environment runs inside a colima VM with an embedded Kubernetes
cluster, a Crossplane installation, and an in-cluster image registry
that locally built packages are published to.`,
	}

	cmd.PersistentFlags().StringVar(&kubeconfigPath, "kubeconfig", "", "Path to the kubeconfig file (default: standard loading rules)")

	// Environment lifecycle
	cmd.AddCommand(Install())
	cmd.AddCommand(Start())
	cmd.AddCommand(Stop())
	cmd.AddCommand(Reset())
	cmd.AddCommand(Destroy())
	cmd.AddCommand(Uninstall())

	// Package and credential management
	cmd.AddCommand(Config())
	cmd.AddCommand(Unconfig())
	cmd.AddCommand(AWS())
	cmd.AddCommand(Kubefwd())

	return cmd
}
