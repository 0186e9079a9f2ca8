package commands

import (
	"github.com/spf13/cobra"

	"github.com/hops-ops/hops/cmd/hops/handlers"
)

// Unconfig returns the command for removing installed configurations.
//
// Exactly one selector is required:
//
//	--name, -n: Configuration resource name
//	--repo, -r: GitHub repository the configuration was installed from
//	--path, -p: Project directory whose build output names the configurations
func Unconfig() *cobra.Command {
	var opts handlers.UnconfigOptions

	cmd := &cobra.Command{
		Use:   "unconfig",
		Short: "Remove a configuration package",
		Long: `Remove a configuration from the local cluster and prune what it
orphaned.

Functions and providers that were only installed for the removed
configuration are deleted as well; anything another installed
configuration still depends on is kept.

With --path the configurations to remove are read from the project's
build output, and pruning is restricted to the packages that build
produced.

Examples:
  # Remove by resource name
  hops local unconfig -n acme-platform-config

  # Remove the configuration installed from a repository
  hops local unconfig -r acme/platform-config

  # Remove everything the local build installed
  hops local unconfig -p .`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.KubeconfigPath = kubeconfigPath
			return handlers.Unconfig(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "Configuration resource name")
	cmd.Flags().StringVarP(&opts.Repo, "repo", "r", "", "GitHub repository (org/repo)")
	cmd.Flags().StringVarP(&opts.Path, "path", "p", "", "Project directory with build output")
	cmd.MarkFlagsMutuallyExclusive("name", "repo", "path")

	return cmd
}
