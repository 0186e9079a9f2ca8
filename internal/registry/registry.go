// Package registry manages the in-cluster package registry and publishes
// locally built packages into it, rewriting dependency pulls so the cluster
// resolves them from the local registry instead of the internet.
package registry

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hops-ops/hops/internal/colima"
	"github.com/hops-ops/hops/internal/k8s"
)

const (
	// PushAddress is where `docker push` reaches the registry, through the
	// NodePort the VM forwards to localhost.
	PushAddress = "localhost:30500"

	// PullAddress is the cluster-internal address used in package
	// references.
	PullAddress = "registry.crossplane-system.svc.cluster.local:5000"

	// Hostname is the registry's service DNS name, which the VM's Docker
	// daemon resolves through an /etc/hosts entry.
	Hostname = "registry.crossplane-system.svc.cluster.local"

	// Namespace holds the registry deployment and service.
	Namespace = "crossplane-system"

	// ServiceName names both the registry deployment and its service.
	ServiceName = "registry"

	defaultDeployTimeout = 2 * time.Minute
)

//go:embed manifests/registry.yaml
var registryManifests []byte

// Service deploys the in-cluster registry and keeps the VM's hosts entry
// pointing at it.
type Service struct {
	client k8s.Client
	vm     colima.Runner

	// DeployTimeout bounds the wait for the registry deployment.
	DeployTimeout time.Duration
}

// NewService creates a Service.
func NewService(client k8s.Client, vm colima.Runner) *Service {
	return &Service{client: client, vm: vm, DeployTimeout: defaultDeployTimeout}
}

// Ensure applies the registry manifests and waits until the deployment is
// available. Safe to call when the registry is already running.
func (s *Service) Ensure(ctx context.Context) error {
	log.Printf("Deploying local package registry...")
	if err := s.client.ApplyManifests(ctx, registryManifests); err != nil {
		return fmt.Errorf("failed to deploy registry: %w", err)
	}
	return s.client.WaitForDeployment(ctx, Namespace, ServiceName, s.DeployTimeout)
}

// SyncHostsEntry points the VM's /etc/hosts entry for the registry hostname
// at the service's current cluster IP. The entry lets the VM's Docker daemon
// pull from the cluster-internal address.
func (s *Service) SyncHostsEntry(ctx context.Context) error {
	ip, err := s.client.ServiceClusterIP(ctx, Namespace, ServiceName)
	if err != nil {
		return err
	}

	current, err := s.vm.SSHOutput(ctx, fmt.Sprintf("awk '$2 == %q {print $1; exit}' /etc/hosts", Hostname))
	if err == nil && strings.TrimSpace(current) == ip {
		return nil
	}

	log.Printf("Updating hosts entry: %s -> %s", Hostname, ip)
	escaped := strings.ReplaceAll(Hostname, ".", `\.`)
	if err := s.vm.SSH(ctx, fmt.Sprintf("sudo sed -i '/%s/d' /etc/hosts", escaped)); err != nil {
		return fmt.Errorf("failed to remove stale hosts entry: %w", err)
	}
	if err := s.vm.SSH(ctx, fmt.Sprintf("sudo sh -c \"echo '%s %s' >> /etc/hosts\"", ip, Hostname)); err != nil {
		return fmt.Errorf("failed to write hosts entry: %w", err)
	}
	return nil
}
