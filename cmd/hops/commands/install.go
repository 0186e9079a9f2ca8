package commands

import (
	"github.com/spf13/cobra"

	"github.com/hops-ops/hops/cmd/hops/handlers"
)

// Install returns the command for installing the host tools.
func Install() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the required host tools",
		Long: `Install colima and kubefwd via Homebrew.

These are the only tools 'hops local' manages itself; docker and the
AWS CLI are expected to be installed separately.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Install(cmd.Context())
		},
	}
}
