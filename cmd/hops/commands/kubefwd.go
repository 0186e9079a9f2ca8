package commands

import (
	"github.com/spf13/cobra"

	"github.com/hops-ops/hops/cmd/hops/handlers"
)

// Kubefwd returns the parent command for the background service forwarder.
func Kubefwd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kubefwd",
		Short: "Manage the background service forwarder",
		Long: `Manage the kubefwd process that forwards cluster services to the host.

kubefwd runs in the background with its own log file, so in-cluster
service names resolve from the host while you develop.

Examples:
  # Start forwarding all services
  hops local kubefwd start

  # Pick up services created after the forwarder started
  hops local kubefwd refresh

  # Check whether the forwarder is running
  hops local kubefwd status`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the service forwarder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.KubefwdStart(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the service forwarder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.KubefwdStop(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Restart the forwarder to pick up new services",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.KubefwdRefresh(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the forwarder's state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.KubefwdStatus(cmd.Context())
		},
	})

	return cmd
}
