package handlers

import (
	"context"

	"github.com/hops-ops/hops/internal/awscreds"
	"github.com/hops-ops/hops/internal/util/prerequisites"
)

// AWSOptions configures the credential refresh.
type AWSOptions struct {
	// Profile is the CLI profile to export from; empty falls back to the
	// environment and then an interactive prompt.
	Profile string

	// RefreshOnly updates only the credentials secret.
	RefreshOnly bool

	// KubeconfigPath overrides the kubeconfig used to reach the cluster.
	KubeconfigPath string
}

// AWS exports credentials from the resolved profile and wires them into the
// cluster's provider resources.
func AWS(ctx context.Context, opts AWSOptions) error {
	if err := checkTools(prerequisites.AWSTools()); err != nil {
		return err
	}

	profile, err := awscreds.ResolveProfile(opts.Profile, getenv, newProfilePrompter())
	if err != nil {
		return err
	}

	client, err := newK8sClient(opts.KubeconfigPath)
	if err != nil {
		return err
	}

	return newCredentialConfigurer(client).Configure(ctx, awscreds.Options{
		Profile:     profile,
		RefreshOnly: opts.RefreshOnly,
	})
}
