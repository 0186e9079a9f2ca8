package commands

import (
	"github.com/spf13/cobra"

	"github.com/hops-ops/hops/cmd/hops/handlers"
)

// AWS returns the command for refreshing AWS credentials in the cluster.
//
// Optional flags:
//
//	--profile: CLI profile to export credentials from
//	--refresh: Update only the credentials secret
//
// Environment variables:
//
//	AWS_PROFILE, AWS_DEFAULT_PROFILE: Profile fallback when --profile is unset
func AWS() *cobra.Command {
	var opts handlers.AWSOptions

	cmd := &cobra.Command{
		Use:   "aws",
		Short: "Export AWS credentials into the cluster",
		Long: `Export short-lived AWS credentials into the local cluster.

Credentials are read from the selected CLI profile, re-authenticating
through SSO when the session has expired, and written into the secret
the AWS provider reads. Without --refresh the provider's config
resources are applied as well.

Examples:
  # Export from the profile in AWS_PROFILE
  hops local aws

  # Export from a specific profile
  hops local aws --profile sandbox

  # Only refresh the credentials secret
  hops local aws --refresh`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.KubeconfigPath = kubeconfigPath
			return handlers.AWS(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Profile, "profile", "", "AWS CLI profile to export from")
	cmd.Flags().BoolVar(&opts.RefreshOnly, "refresh", false, "Update only the credentials secret")

	return cmd
}
