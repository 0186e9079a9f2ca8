package commands

import (
	"github.com/spf13/cobra"

	"github.com/hops-ops/hops/cmd/hops/handlers"
)

// Config returns the command for installing a configuration package.
//
// The configuration comes either from a local project directory, a GitHub
// repository built from source, or a published version pinned directly.
//
// Optional flags:
//
//	--path, -p: Local project directory to build and install
//	--repo, -r: GitHub repository (org/repo) to clone and build
//	--version, -v: Published version to install directly (requires --repo)
//	--reload: Recreate active revisions so changes without a version bump land
func Config() *cobra.Command {
	var opts handlers.ConfigOptions

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Build and install a configuration package",
		Long: `Build a configuration package and install it into the local cluster.

Source builds are published to the in-cluster registry together with the
function packages built alongside them, and image rewrite rules are set
up so the cluster pulls them from the registry instead of the internet.

With --version the published package is installed as-is, without
building anything.

Examples:
  # Build and install the project in the current directory
  hops local config -p .

  # Build and install straight from GitHub
  hops local config -r acme/platform-config

  # Install a published release without building
  hops local config -r acme/platform-config -v v1.4.0

  # Pick up source changes that did not bump the version
  hops local config -p . --reload`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.KubeconfigPath = kubeconfigPath
			return handlers.Config(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Path, "path", "p", "", "Local project directory")
	cmd.Flags().StringVarP(&opts.Repo, "repo", "r", "", "GitHub repository (org/repo)")
	cmd.Flags().StringVarP(&opts.Version, "version", "v", "", "Published version to install (requires --repo)")
	cmd.Flags().BoolVar(&opts.Reload, "reload", false, "Recreate active revisions after installing")
	cmd.MarkFlagsMutuallyExclusive("path", "repo")

	return cmd
}
