// Package bootstrap takes the local environment from nothing to a cluster
// with Crossplane, the core providers, and the package registry running.
package bootstrap

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hops-ops/hops/internal/colima"
	"github.com/hops-ops/hops/internal/k8s"
	"github.com/hops-ops/hops/internal/registry"
	"github.com/hops-ops/hops/internal/util/execx"
)

const (
	// Namespace is where Crossplane and the registry live.
	Namespace = "crossplane-system"

	crossplaneRepoURL = "https://charts.crossplane.io/stable"
	crossplaneChart   = "crossplane"
	crossplaneRelease = "crossplane"

	helmPCCRD       = "providerconfigs.helm.m.crossplane.io"
	kubernetesPCCRD = "providerconfigs.kubernetes.m.crossplane.io"

	defaultAPITimeout    = 5 * time.Minute
	defaultCRDTimeout    = 5 * time.Minute
	defaultDeployTimeout = 5 * time.Minute
	dockerRestartTimeout = 2 * time.Minute

	apiPollInterval    = 5 * time.Second
	dockerPollInterval = 2 * time.Second
)

//go:embed manifests/runtime-config.yaml
var runtimeConfigManifests []byte

//go:embed manifests/providers.yaml
var providerManifests []byte

//go:embed manifests/providerconfigs.yaml
var providerConfigManifests []byte

// ChartInstaller installs or upgrades a Helm release.
type ChartInstaller interface {
	InstallOrUpgrade(ctx context.Context, releaseName, repoURL, chartName, version string, values map[string]interface{}) error
}

// Bootstrapper drives the local environment lifecycle.
type Bootstrapper struct {
	vm     colima.Runner
	charts ChartInstaller

	// newClient builds a cluster client. It is a factory because the
	// cluster only exists after the VM starts.
	newClient func() (k8s.Client, error)

	// dockerReady probes the host's Docker daemon.
	dockerReady func(ctx context.Context) error

	APITimeout    time.Duration
	CRDTimeout    time.Duration
	DeployTimeout time.Duration
}

// New creates a Bootstrapper.
func New(vm colima.Runner, charts ChartInstaller, newClient func() (k8s.Client, error)) *Bootstrapper {
	return &Bootstrapper{
		vm:        vm,
		charts:    charts,
		newClient: newClient,
		dockerReady: func(ctx context.Context) error {
			_, err := execx.Output(ctx, "docker", "info")
			return err
		},
		APITimeout:    defaultAPITimeout,
		CRDTimeout:    defaultCRDTimeout,
		DeployTimeout: defaultDeployTimeout,
	}
}

// Start brings the VM up and installs everything the cluster needs:
// Crossplane via Helm, the runtime config and core providers, their
// provider configs, and the local package registry.
func (b *Bootstrapper) Start(ctx context.Context, opts colima.StartOptions) error {
	log.Printf("Starting colima with Kubernetes...")
	if err := b.vm.Start(ctx, opts); err != nil {
		return err
	}

	// Colima may return before the API server is ready.
	client, err := b.waitForAPI(ctx)
	if err != nil {
		return err
	}

	restarted, err := b.configureInsecureRegistry(ctx)
	if err != nil {
		return err
	}
	if restarted {
		// The Docker restart can briefly take the API server down with it.
		if client, err = b.waitForAPI(ctx); err != nil {
			return err
		}
	}

	log.Printf("Installing Crossplane...")
	if err := b.charts.InstallOrUpgrade(ctx, crossplaneRelease, crossplaneRepoURL, crossplaneChart, "", nil); err != nil {
		return err
	}

	log.Printf("Waiting for Crossplane to be ready...")
	if err := client.WaitForDeployment(ctx, Namespace, crossplaneRelease, b.DeployTimeout); err != nil {
		return err
	}

	log.Printf("Applying deployment runtime config...")
	if err := client.ApplyManifests(ctx, runtimeConfigManifests); err != nil {
		return err
	}

	log.Printf("Installing providers...")
	if err := client.ApplyManifests(ctx, providerManifests); err != nil {
		return err
	}

	for _, crd := range []string{helmPCCRD, kubernetesPCCRD} {
		log.Printf("Waiting for CRD %s...", crd)
		if err := client.WaitForCRD(ctx, crd, b.CRDTimeout); err != nil {
			return err
		}
	}

	log.Printf("Applying provider configs...")
	if err := client.ApplyManifests(ctx, providerConfigManifests); err != nil {
		return err
	}

	reg := registry.NewService(client, b.vm)
	if err := reg.Ensure(ctx); err != nil {
		return err
	}
	if err := reg.SyncHostsEntry(ctx); err != nil {
		return err
	}

	log.Printf("Local environment is ready")
	return nil
}

// waitForAPI polls until a client can reach the API server, probing through
// the default kubernetes service.
func (b *Bootstrapper) waitForAPI(ctx context.Context) (k8s.Client, error) {
	log.Printf("Waiting for Kubernetes API...")
	deadline := time.Now().Add(b.APITimeout)

	var lastErr error
	for {
		client, err := b.newClient()
		if err == nil {
			if _, err = client.ServiceClusterIP(ctx, "default", "kubernetes"); err == nil {
				return client, nil
			}
		}
		lastErr = err

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for the Kubernetes API: %v", lastErr)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(apiPollInterval):
		}
	}
}

// configureInsecureRegistry adds the cluster-internal registry to the VM
// Docker daemon's insecure-registries list. Docker defaults to HTTPS for
// non-localhost registries and the in-cluster registry speaks plain HTTP.
// Returns whether the daemon was reconfigured and restarted.
func (b *Bootstrapper) configureInsecureRegistry(ctx context.Context) (bool, error) {
	config, err := b.vm.SSHOutput(ctx, "cat /etc/docker/daemon.json")
	if err != nil {
		return false, fmt.Errorf("failed to read docker daemon.json: %w", err)
	}
	if strings.Contains(config, "insecure-registries") {
		return false, nil
	}

	log.Printf("Configuring Docker for the insecure local registry...")
	patched, err := insertInsecureRegistries(config, registry.PullAddress)
	if err != nil {
		return false, err
	}

	if err := b.vm.SSHWithInput(ctx, patched, "sudo tee /etc/docker/daemon.json > /dev/null"); err != nil {
		return false, fmt.Errorf("failed to write docker daemon.json: %w", err)
	}

	log.Printf("Restarting Docker daemon...")
	if err := b.vm.SSH(ctx, "sudo systemctl restart docker"); err != nil {
		return false, fmt.Errorf("failed to restart docker: %w", err)
	}
	return true, b.waitForDocker(ctx)
}

// insertInsecureRegistries splices the insecure-registries key before the
// final closing brace of daemon.json, leaving the rest untouched.
func insertInsecureRegistries(config, address string) (string, error) {
	pos := strings.LastIndex(config, "}")
	if pos < 0 {
		return "", errors.New("invalid daemon.json: no closing brace")
	}
	prefix := strings.TrimRight(config[:pos], " \t\n")
	return fmt.Sprintf("%s,\n  \"insecure-registries\": [%q]\n}\n", prefix, address), nil
}

func (b *Bootstrapper) waitForDocker(ctx context.Context) error {
	deadline := time.Now().Add(dockerRestartTimeout)
	for {
		if err := b.dockerReady(ctx); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("docker did not come back after restart")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dockerPollInterval):
		}
	}
}
