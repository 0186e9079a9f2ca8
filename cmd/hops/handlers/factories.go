// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command
// definitions in the commands package. Handlers are framework-agnostic and
// can be tested independently of the CLI framework.
package handlers

import (
	"context"
	"os"

	"github.com/hops-ops/hops/internal/awscreds"
	"github.com/hops-ops/hops/internal/bootstrap"
	"github.com/hops-ops/hops/internal/colima"
	"github.com/hops-ops/hops/internal/helm"
	"github.com/hops-ops/hops/internal/k8s"
	"github.com/hops-ops/hops/internal/kubefwd"
	"github.com/hops-ops/hops/internal/prune"
	"github.com/hops-ops/hops/internal/registry"
	"github.com/hops-ops/hops/internal/reload"
	"github.com/hops-ops/hops/internal/resolver"
	"github.com/hops-ops/hops/internal/util/prerequisites"
	"github.com/hops-ops/hops/internal/xpkg"
)

// Resolver interface for testing - matches resolver.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (resolver.Result, error)
}

// Reloader interface for testing - matches reload.Controller.
type Reloader interface {
	Reload(ctx context.Context, name string, configuration xpkg.Ref, siblings []xpkg.Ref) (reload.Result, error)
}

// Pruner interface for testing - matches prune.Engine.
type Pruner interface {
	Prune(ctx context.Context, target prune.Target) (prune.Result, error)
}

// Publisher interface for testing - matches registry.Publisher.
type Publisher interface {
	Publish(ctx context.Context, artifacts []string) ([]string, error)
}

// RegistryService interface for testing - matches registry.Service.
type RegistryService interface {
	Ensure(ctx context.Context) error
	SyncHostsEntry(ctx context.Context) error
}

// Supervisor interface for testing - matches kubefwd.Supervisor.
type Supervisor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Refresh(ctx context.Context) error
	Status() (kubefwd.State, *kubefwd.Record, error)
}

// CredentialConfigurer interface for testing - matches awscreds.Controller.
type CredentialConfigurer interface {
	Configure(ctx context.Context, opts awscreds.Options) error
}

// Lifecycle interface for testing - matches bootstrap.Bootstrapper.
type Lifecycle interface {
	Start(ctx context.Context, opts colima.StartOptions) error
	Stop(ctx context.Context) error
	Destroy(ctx context.Context) error
	Reset(ctx context.Context) error
	Install(ctx context.Context) error
	Uninstall(ctx context.Context) error
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// newK8sClient builds a cluster client from a kubeconfig path.
	newK8sClient = k8s.New

	// newResolver creates the desired-state resolver backed by the real
	// project builder and git cloner.
	newResolver = func() Resolver {
		return resolver.New(resolver.UpBuilder{}, resolver.GitCloner{})
	}

	// newReloader creates the revision reload controller.
	newReloader = func(client k8s.Client) Reloader {
		return reload.New(client)
	}

	// newPruner creates the orphan pruning engine.
	newPruner = func(client k8s.Client) Pruner {
		return prune.New(client)
	}

	// newPublisher creates the package publisher.
	newPublisher = func(client k8s.Client) Publisher {
		return registry.NewPublisher(client, registry.NewDocker())
	}

	// newRegistryService creates the in-cluster registry manager.
	newRegistryService = func(client k8s.Client) RegistryService {
		return registry.NewService(client, colima.NewRunner())
	}

	// newSupervisor creates the forwarder supervisor with its file-backed
	// process record.
	newSupervisor = func() (Supervisor, error) {
		store, err := kubefwd.NewStore()
		if err != nil {
			return nil, err
		}
		return kubefwd.New(store, kubefwd.NewLauncher()), nil
	}

	// newCredentialConfigurer creates the AWS credential refresh controller.
	newCredentialConfigurer = func(client k8s.Client) CredentialConfigurer {
		return awscreds.New(client, awscreds.NewExporter(), awscreds.NewReauthenticator())
	}

	// newProfilePrompter creates the interactive profile prompter.
	newProfilePrompter = awscreds.NewPrompter

	// newLifecycle creates the environment bootstrapper. The chart
	// installer and cluster client are only needed by Start, so their
	// construction failures surface there.
	newLifecycle = func(kubeconfigPath string) (Lifecycle, error) {
		charts, err := helm.NewClient(kubeconfigPath, bootstrap.Namespace)
		if err != nil {
			return nil, err
		}
		return bootstrap.New(colima.NewRunner(), charts, func() (k8s.Client, error) {
			return k8s.New(kubeconfigPath)
		}), nil
	}

	// checkTools runs prerequisite checks.
	checkTools = func(tools []prerequisites.Tool) error {
		return prerequisites.Check(tools).Error()
	}

	// getenv reads environment variables (for testing injection).
	getenv = os.Getenv
)
