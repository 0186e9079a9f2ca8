// Package prune removes a Configuration and exactly the packages that
// become unreferenced once it is gone. The package lock's dependency graph
// decides what is orphaned; anything still reachable from a surviving lock
// entry is kept.
package prune

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/hops-ops/hops/internal/k8s"
	"github.com/hops-ops/hops/internal/xpkg"
)

var (
	// ErrNotFound indicates the target configuration is not installed.
	ErrNotFound = errors.New("configuration not found")

	// ErrReconcileTimeout indicates the package lock did not reflect the
	// configuration's removal within the wait bound.
	ErrReconcileTimeout = errors.New("package lock did not reconcile in time")
)

// lockObjectName is the singleton package lock resource.
const lockObjectName = "lock"

// defaultLockTimeout bounds the post-delete lock reconciliation wait.
const defaultLockTimeout = 90 * time.Second

// Target selects the configuration to remove.
type Target struct {
	// Name is the Configuration resource name.
	Name string

	// ArtifactSources, when set, restricts pruning candidates to the
	// package sources produced by a local build. Resources the build does
	// not own are never touched.
	ArtifactSources []string
}

// Result summarizes what the prune removed and what it left in place.
type Result struct {
	// Removed lists deleted packages as "Kind source".
	Removed []string

	// Kept lists candidate packages left in place because another
	// installed configuration still references them.
	Kept []string
}

// Engine deletes a configuration and prunes its orphaned packages.
type Engine struct {
	client k8s.Client

	// LockTimeout bounds the lock reconciliation wait after the delete.
	LockTimeout time.Duration
}

// New creates an Engine with the default lock wait bound.
func New(client k8s.Client) *Engine {
	return &Engine{client: client, LockTimeout: defaultLockTimeout}
}

// lockPackage is one entry of the package lock: an installed package and
// the sources it depends on.
type lockPackage struct {
	Kind         string `json:"kind"`
	Type         string `json:"type"`
	Name         string `json:"name"`
	Source       string `json:"source"`
	Dependencies []struct {
		Package string `json:"package"`
	} `json:"dependencies"`
}

func (p lockPackage) kind() string {
	if p.Kind != "" {
		return p.Kind
	}
	return p.Type
}

// Prune removes the target configuration, waits for the lock to drop its
// entry, then deletes every package that was only reachable through it.
// Packages shared with surviving configurations are reported as kept.
func (e *Engine) Prune(ctx context.Context, target Target) (Result, error) {
	cfg, err := e.client.Get(ctx, xpkg.ConfigurationsGVR, "", target.Name)
	if k8s.IsNotFound(err) {
		return Result{}, fmt.Errorf("%w: %q", ErrNotFound, target.Name)
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch configuration %q: %w", target.Name, err)
	}
	cfgSource := xpkg.PackageSourceOf(cfg)

	pre, err := e.lockPackages(ctx)
	if err != nil {
		return Result{}, err
	}

	log.Printf("Deleting Configuration %q...", target.Name)
	if _, err := e.client.Delete(ctx, xpkg.ConfigurationsGVR, "", target.Name); err != nil {
		return Result{}, err
	}

	_, err = e.client.WaitFor(ctx, xpkg.LocksGVR, "", lockObjectName, e.LockTimeout,
		func(obj *unstructured.Unstructured) (bool, error) {
			if obj == nil {
				return true, nil
			}
			for _, pkg := range parseLockPackages(obj) {
				if pkg.kind() == string(xpkg.KindConfiguration) && xpkg.Source(pkg.Source) == cfgSource {
					return false, nil
				}
			}
			return true, nil
		})
	if errors.Is(err, k8s.ErrWaitTimeout) {
		return Result{}, fmt.Errorf("%w: configuration %q still locked after %s", ErrReconcileTimeout, target.Name, e.LockTimeout)
	}
	if err != nil {
		return Result{}, err
	}

	post, err := e.lockPackages(ctx)
	if err != nil {
		return Result{}, err
	}

	// Candidates are the removed configuration's transitive dependencies
	// as the pre-delete lock recorded them.
	preDeps, kinds := dependencyGraph(pre)
	candidates := reachableFrom(preDeps[cfgSource], preDeps)
	delete(candidates, cfgSource)

	if len(target.ArtifactSources) > 0 {
		allowed := map[string]bool{}
		for _, source := range target.ArtifactSources {
			allowed[xpkg.Source(source)] = true
		}
		for source := range candidates {
			if !allowed[source] {
				delete(candidates, source)
			}
		}
	}

	// Anything a surviving configuration can still reach stays installed.
	// Dependency entries linger in the lock until pruned, so only the
	// top-level configurations count as roots.
	postDeps, _ := dependencyGraph(post)
	var roots []string
	for _, pkg := range post {
		if pkg.kind() == string(xpkg.KindConfiguration) {
			roots = append(roots, xpkg.Source(pkg.Source))
		}
	}
	reachable := reachableFrom(roots, postDeps)

	result := Result{Removed: []string{fmt.Sprintf("%s %s", xpkg.KindConfiguration, cfgSource)}}
	prunedSources := []string{cfgSource}

	sorted := make([]string, 0, len(candidates))
	for source := range candidates {
		sorted = append(sorted, source)
	}
	sort.Strings(sorted)

	for _, source := range sorted {
		kind, installed := kinds[source]
		if !installed {
			continue
		}
		if reachable[source] {
			result.Kept = append(result.Kept, fmt.Sprintf("%s %s", kind, source))
			continue
		}

		log.Printf("Pruning orphaned %s %s...", kind, source)
		if err := e.deletePackage(ctx, kind, source); err != nil {
			return result, err
		}
		result.Removed = append(result.Removed, fmt.Sprintf("%s %s", kind, source))
		prunedSources = append(prunedSources, source)
	}

	if err := e.pruneImageConfigs(ctx, prunedSources); err != nil {
		return result, err
	}

	// The configuration's own revisions may linger when garbage collection
	// lags the lock update.
	if err := e.deletePackage(ctx, xpkg.KindConfiguration, cfgSource); err != nil {
		return result, err
	}

	return result, nil
}

// lockPackages reads the package lock. An absent lock means nothing is
// installed.
func (e *Engine) lockPackages(ctx context.Context) ([]lockPackage, error) {
	obj, err := e.client.Get(ctx, xpkg.LocksGVR, "", lockObjectName)
	if k8s.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read package lock: %w", err)
	}
	return parseLockPackages(obj), nil
}

func parseLockPackages(obj *unstructured.Unstructured) []lockPackage {
	raw, ok := obj.Object["packages"]
	if !ok {
		return nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}

	var packages []lockPackage
	if err := json.Unmarshal(data, &packages); err != nil {
		return nil
	}
	return packages
}

// dependencyGraph maps each locked source to its dependency sources and
// its package kind.
func dependencyGraph(packages []lockPackage) (map[string][]string, map[string]xpkg.Kind) {
	deps := map[string][]string{}
	kinds := map[string]xpkg.Kind{}
	for _, pkg := range packages {
		source := xpkg.Source(pkg.Source)
		kinds[source] = xpkg.Kind(pkg.kind())
		for _, dep := range pkg.Dependencies {
			deps[source] = append(deps[source], xpkg.Source(dep.Package))
		}
	}
	return deps, kinds
}

// reachableFrom walks the dependency graph from the given roots. The lock
// is acyclic by construction, but visited tracking keeps shared deps cheap.
func reachableFrom(roots []string, deps map[string][]string) map[string]bool {
	reachable := map[string]bool{}
	stack := append([]string(nil), roots...)
	for len(stack) > 0 {
		source := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[source] {
			continue
		}
		reachable[source] = true
		stack = append(stack, deps[source]...)
	}
	return reachable
}

// deletePackage removes the package resource and all its revisions for the
// given source.
func (e *Engine) deletePackage(ctx context.Context, kind xpkg.Kind, source string) error {
	if err := e.deleteBySource(ctx, xpkg.PackageGVR(kind), source); err != nil {
		return err
	}
	return e.deleteBySource(ctx, xpkg.RevisionGVR(kind), source)
}

func (e *Engine) deleteBySource(ctx context.Context, gvr schema.GroupVersionResource, source string) error {
	items, err := e.client.List(ctx, gvr, "")
	if err != nil {
		return err
	}

	for _, item := range items {
		if xpkg.PackageSourceOf(&item) != source {
			continue
		}
		if _, err := e.client.Delete(ctx, gvr, "", item.GetName()); err != nil {
			return fmt.Errorf("failed to delete %s %q: %w", gvr.Resource, item.GetName(), err)
		}
	}
	return nil
}

// pruneImageConfigs deletes image rewrite rules whose match prefix is one
// of the pruned sources. Rewrites created by other means are left alone.
func (e *Engine) pruneImageConfigs(ctx context.Context, sources []string) error {
	pruned := map[string]bool{}
	for _, source := range sources {
		pruned[source] = true
	}

	items, err := e.client.List(ctx, xpkg.ImageConfigsGVR, "")
	if err != nil {
		return err
	}

	for _, item := range items {
		matches, _, _ := unstructured.NestedSlice(item.Object, "spec", "matchImages")
		for _, match := range matches {
			entry, ok := match.(map[string]interface{})
			if !ok {
				continue
			}
			prefix, _ := entry["prefix"].(string)
			if !pruned[prefix] {
				continue
			}

			log.Printf("Pruning ImageConfig %q...", item.GetName())
			if _, err := e.client.Delete(ctx, xpkg.ImageConfigsGVR, "", item.GetName()); err != nil {
				return fmt.Errorf("failed to delete imageconfig %q: %w", item.GetName(), err)
			}
			break
		}
	}
	return nil
}
