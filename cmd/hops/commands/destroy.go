package commands

import (
	"github.com/spf13/cobra"

	"github.com/hops-ops/hops/cmd/hops/handlers"
)

// Destroy returns the command for deleting the local environment.
func Destroy() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy",
		Short: "Delete the local environment",
		Long: `Delete the colima VM and all cluster state.

Everything installed into the cluster is lost. Use 'hops local stop'
instead to keep the state for later.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context())
		},
	}
}
