package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/hops-ops/hops/internal/prune"
	"github.com/hops-ops/hops/internal/uppkg"
	"github.com/hops-ops/hops/internal/xpkg"
)

// UnconfigOptions selects which configuration(s) to remove. Exactly one of
// Name, Repo, or Path must be set.
type UnconfigOptions struct {
	// Name is a Configuration resource name.
	Name string

	// Repo is a GitHub repository slug; the name derives as org-repo.
	Repo string

	// Path is a project directory whose build output names the
	// configurations to remove. Pruning is then restricted to the package
	// sources that output produced.
	Path string

	// KubeconfigPath overrides the kubeconfig used to reach the cluster.
	KubeconfigPath string
}

// Unconfig removes the targeted configurations and prunes the dependencies
// they orphaned, keeping anything another installed configuration still
// reaches.
func Unconfig(ctx context.Context, opts UnconfigOptions) error {
	targets, err := resolveUnconfigTargets(opts)
	if err != nil {
		return err
	}

	client, err := newK8sClient(opts.KubeconfigPath)
	if err != nil {
		return err
	}
	engine := newPruner(client)

	for _, target := range targets {
		log.Printf("Removing Configuration %q...", target.Name)
		result, err := engine.Prune(ctx, target)
		if err != nil {
			return err
		}
		for _, removed := range result.Removed {
			log.Printf("Removed %s", removed)
		}
		for _, kept := range result.Kept {
			log.Printf("Kept %s (still in use)", kept)
		}
	}
	return nil
}

// resolveUnconfigTargets maps the selected option onto prune targets.
func resolveUnconfigTargets(opts UnconfigOptions) ([]prune.Target, error) {
	set := 0
	for _, v := range []string{opts.Name, opts.Repo, opts.Path} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	if set != 1 {
		return nil, errors.New("pass exactly one of --name, --repo, or --path")
	}

	switch {
	case opts.Name != "":
		return []prune.Target{{Name: strings.TrimSpace(opts.Name)}}, nil

	case opts.Repo != "":
		repo, err := xpkg.ParseRepo(opts.Repo)
		if err != nil {
			return nil, err
		}
		return []prune.Target{{Name: repo.ConfigurationName()}}, nil

	default:
		return targetsFromBuildOutput(opts.Path)
	}
}

// targetsFromBuildOutput derives configuration names and owned package
// sources from the artifacts in a project's build output.
func targetsFromBuildOutput(path string) ([]prune.Target, error) {
	artifacts, err := uppkg.List(path + "/_output")
	if err != nil {
		return nil, err
	}

	nameSet := make(map[string]bool)
	sourceSet := make(map[string]bool)
	for _, artifact := range artifacts {
		images, err := uppkg.Images(artifact)
		if err != nil {
			return nil, err
		}
		for _, image := range images {
			sourceSet[xpkg.Source(image)] = true

			imagePath, tag := xpkg.SplitRef(image)
			if tag != "configuration" {
				continue
			}
			name := xpkg.SanitizeName(imagePath[strings.LastIndex(imagePath, "/")+1:])
			nameSet[name] = true
		}
	}
	if len(nameSet) == 0 {
		return nil, fmt.Errorf("no configuration package images found in %s/_output", path)
	}

	sources := make([]string, 0, len(sourceSet))
	for source := range sourceSet {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)

	targets := make([]prune.Target, 0, len(names))
	for _, name := range names {
		targets = append(targets, prune.Target{Name: name, ArtifactSources: sources})
	}
	return targets, nil
}
