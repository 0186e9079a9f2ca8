package commands

import (
	"github.com/spf13/cobra"

	"github.com/hops-ops/hops/cmd/hops/handlers"
)

// Stop returns the command for halting the local environment.
func Stop() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the local environment",
		Long: `Stop the colima VM, keeping its state.

The cluster and everything installed into it survive a stop; 'hops
local start' brings it all back.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Stop(cmd.Context())
		},
	}
}
