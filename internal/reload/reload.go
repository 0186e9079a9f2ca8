// Package reload forces a freshly pushed package to be re-installed by
// removing the revisions that still pin the previous image and re-applying
// the Configuration.
package reload

import (
	"context"
	"fmt"
	"log"

	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/hops-ops/hops/internal/k8s"
	"github.com/hops-ops/hops/internal/xpkg"
)

// Result summarizes one reload pass.
type Result struct {
	// Deleted lists the revisions that were removed, as resource/name.
	Deleted []string

	// Kept counts revisions that were examined and left alone.
	Kept int
}

// Controller deletes stale package revisions and re-applies the target
// Configuration.
type Controller struct {
	client k8s.Client
}

// New creates a Controller.
func New(client k8s.Client) *Controller {
	return &Controller{client: client}
}

// Reload removes the installed revisions of the configuration and its
// sibling packages, then re-applies the Configuration. The named
// Configuration must already exist. Revisions that vanished between list
// and delete count as deleted; running reload twice in a row leaves the
// cluster unchanged.
func (c *Controller) Reload(ctx context.Context, name string, configuration xpkg.Ref, siblings []xpkg.Ref) (Result, error) {
	_, err := c.client.Get(ctx, xpkg.ConfigurationsGVR, "", name)
	if k8s.IsNotFound(err) {
		return Result{}, fmt.Errorf("configuration %q is not installed, apply it before reloading", name)
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch configuration %q: %w", name, err)
	}

	targets := map[schema.GroupVersionResource]map[string]bool{
		xpkg.ConfigurationRevisionsGVR: {configuration.Source(): true},
		xpkg.FunctionRevisionsGVR:      {},
		xpkg.ProviderRevisionsGVR:      {},
	}
	for _, sib := range siblings {
		targets[xpkg.RevisionGVR(sib.Kind)][sib.Source()] = true
	}

	var result Result
	for _, gvr := range []schema.GroupVersionResource{
		xpkg.ConfigurationRevisionsGVR,
		xpkg.FunctionRevisionsGVR,
		xpkg.ProviderRevisionsGVR,
	} {
		sources := targets[gvr]
		if len(sources) == 0 {
			continue
		}

		revisions, err := c.client.List(ctx, gvr, "")
		if err != nil {
			return result, err
		}

		for _, rev := range revisions {
			if !sources[xpkg.PackageSourceOf(&rev)] {
				result.Kept++
				continue
			}

			log.Printf("Deleting revision %s/%s...", gvr.Resource, rev.GetName())
			if _, err := c.client.Delete(ctx, gvr, "", rev.GetName()); err != nil {
				return result, fmt.Errorf("failed to delete revision %s/%s: %w", gvr.Resource, rev.GetName(), err)
			}
			result.Deleted = append(result.Deleted, fmt.Sprintf("%s/%s", gvr.Resource, rev.GetName()))
		}
	}

	if _, err := c.client.Apply(ctx, xpkg.ConfigurationsGVR, xpkg.ConfigurationManifest(name, configuration.Image)); err != nil {
		return result, err
	}

	return result, nil
}
