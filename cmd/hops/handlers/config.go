package handlers

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/hops-ops/hops/internal/registry"
	"github.com/hops-ops/hops/internal/resolver"
	"github.com/hops-ops/hops/internal/util/prerequisites"
	"github.com/hops-ops/hops/internal/xpkg"
)

// ConfigOptions selects the configuration source for Config.
type ConfigOptions struct {
	// Path to a local project directory. Mutually exclusive with Repo.
	Path string

	// Repo is a GitHub repository slug (org/repo).
	Repo string

	// Version pins a published tag, skipping clone and build. Requires
	// Repo.
	Version string

	// Reload forces re-creation of existing revisions for the resolved
	// configuration and its build siblings.
	Reload bool

	// KubeconfigPath overrides the kubeconfig used to reach the cluster.
	KubeconfigPath string
}

// Config resolves the desired configuration state and applies it to the
// cluster: for version-pinned repos that is a single Configuration apply;
// for source mode it builds, publishes to the local registry, and applies
// (or reloads) every configuration the build produced.
func Config(ctx context.Context, opts ConfigOptions) error {
	pinned := opts.Repo != "" && strings.TrimSpace(opts.Version) != ""
	if !pinned {
		if err := checkTools(prerequisites.BuildTools()); err != nil {
			return err
		}
	}

	res, err := newResolver().Resolve(ctx, resolver.Request{
		Path:    opts.Path,
		Repo:    opts.Repo,
		Version: opts.Version,
		Reload:  opts.Reload,
	})
	if err != nil {
		return err
	}
	if res.CloneDir != "" {
		defer os.RemoveAll(res.CloneDir)
	}

	client, err := newK8sClient(opts.KubeconfigPath)
	if err != nil {
		return err
	}

	if res.Pinned {
		log.Printf("Applying Configuration %q...", res.Name)
		_, err := client.Apply(ctx, xpkg.ConfigurationsGVR, xpkg.ConfigurationManifest(res.Name, res.Configuration.Image))
		return err
	}

	reg := newRegistryService(client)
	if err := reg.Ensure(ctx); err != nil {
		return err
	}
	if err := reg.SyncHostsEntry(ctx); err != nil {
		return err
	}

	pullRefs, err := newPublisher(client).Publish(ctx, res.Artifacts)
	if err != nil {
		return err
	}

	for _, pullRef := range pullRefs {
		path, _ := xpkg.SplitRef(pullRef)
		name := xpkg.SanitizeName(path[strings.LastIndex(path, "/")+1:])

		if opts.Reload {
			result, err := newReloader(client).Reload(ctx, name, xpkg.Ref{Kind: xpkg.KindConfiguration, Image: pullRef}, res.Siblings)
			if err != nil {
				return err
			}
			for _, deleted := range result.Deleted {
				log.Printf("Deleted stale revision %s", deleted)
			}
			continue
		}

		log.Printf("Applying Configuration %q...", name)
		if _, err := client.Apply(ctx, xpkg.ConfigurationsGVR, xpkg.ConfigurationManifest(name, pullRef)); err != nil {
			return err
		}
	}

	log.Printf("Configured %d package(s) from the local registry at %s", len(pullRefs), registry.PullAddress)
	return nil
}
