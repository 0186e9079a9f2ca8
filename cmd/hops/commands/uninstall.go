package commands

import (
	"github.com/spf13/cobra"

	"github.com/hops-ops/hops/cmd/hops/handlers"
)

// Uninstall returns the command for removing the VM runtime from the host.
func Uninstall() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall colima from the host",
		Long: `Uninstall colima via Homebrew after confirmation.

Destroy the environment first if you want its disk space back; this
only removes the colima binary.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Uninstall(cmd.Context())
		},
	}
}
