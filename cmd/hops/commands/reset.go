package commands

import (
	"github.com/spf13/cobra"

	"github.com/hops-ops/hops/cmd/hops/handlers"
)

// Reset returns the command for wiping the embedded cluster.
func Reset() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the embedded Kubernetes cluster",
		Long: `Reset the Kubernetes cluster inside the VM to a blank state.

The VM itself keeps running; run 'hops local start' afterwards to
reinstall Crossplane and the registry.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Reset(cmd.Context())
		},
	}
}
