package commands

import (
	"github.com/spf13/cobra"

	"github.com/hops-ops/hops/cmd/hops/handlers"
	"github.com/hops-ops/hops/internal/colima"
)

// Start returns the command for bringing up the local environment.
//
// Optional flags:
//
//	--cpu: Number of CPUs for the VM
//	--memory: VM memory in GiB
//	--disk: VM disk size in GiB
func Start() *cobra.Command {
	var opts handlers.StartOptions

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the local environment",
		Long: `Start the local development environment.

This boots the colima VM with an embedded Kubernetes cluster, installs
Crossplane with its helm and kubernetes providers, and deploys the
in-cluster registry that local package builds are published to.

Running start against an existing environment is safe; each step is
skipped or upgraded in place as needed.

Examples:
  # Start with the default VM sizing
  hops local start

  # Start a smaller VM
  hops local start --cpu 4 --memory 8 --disk 40`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.KubeconfigPath = kubeconfigPath
			return handlers.Start(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.CPUs, "cpu", colima.DefaultCPUs, "Number of CPUs for the VM")
	cmd.Flags().IntVar(&opts.MemoryGiB, "memory", colima.DefaultMemoryGiB, "VM memory in GiB")
	cmd.Flags().IntVar(&opts.DiskGiB, "disk", colima.DefaultDiskGiB, "VM disk size in GiB")

	return cmd
}
