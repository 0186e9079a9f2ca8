// Package resolver computes the desired package set for an apply: which
// Configuration should exist, which sibling Function and Provider packages
// accompany it, and where the built artifacts live. It never touches the
// cluster.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"

	"github.com/hops-ops/hops/internal/uppkg"
	"github.com/hops-ops/hops/internal/util/execx"
	"github.com/hops-ops/hops/internal/xpkg"
)

// ErrUnsupportedOption indicates a request combined options that cannot be
// honored together, such as reloading a version-pinned package.
var ErrUnsupportedOption = errors.New("unsupported option combination")

// Request selects the target to resolve. Exactly one of Path or Repo is
// set; Version requires Repo and pins the package without building.
type Request struct {
	Path    string
	Repo    string
	Version string
	Reload  bool
}

// Result is the resolved desired state.
type Result struct {
	// Name is the Configuration resource name to apply.
	Name string

	// Configuration is the configuration package reference.
	Configuration xpkg.Ref

	// Siblings are the Function and Provider packages built alongside the
	// configuration. Empty for pinned resolutions.
	Siblings []xpkg.Ref

	// Artifacts are the built package tarballs the refs were read from.
	// Empty for pinned resolutions.
	Artifacts []string

	// CloneDir is the temporary checkout for remote resolutions. The caller
	// removes it when done with the artifacts.
	CloneDir string

	// Pinned reports that the configuration installs straight from its
	// upstream registry with no local build.
	Pinned bool
}

// Sources returns the package sources of everything the build produced,
// configuration included.
func (r Result) Sources() []string {
	sources := []string{r.Configuration.Source()}
	for _, sib := range r.Siblings {
		sources = append(sources, sib.Source())
	}
	return sources
}

// Builder produces package artifacts from a project directory.
type Builder interface {
	Build(ctx context.Context, dir string) error
}

// Cloner materializes a remote repository into a local directory.
type Cloner interface {
	Clone(ctx context.Context, url, dir string) error
}

// UpBuilder builds packages with the `up` CLI.
type UpBuilder struct{}

func (UpBuilder) Build(ctx context.Context, dir string) error {
	return execx.RunIn(ctx, dir, "up", "project", "build")
}

// GitCloner clones repositories over HTTPS.
type GitCloner struct{}

func (GitCloner) Clone(ctx context.Context, url, dir string) error {
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:      url,
		Depth:    1,
		Progress: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", url, err)
	}
	return nil
}

// Resolver turns a request into the desired package set.
type Resolver struct {
	builder Builder
	cloner  Cloner
}

// New creates a Resolver with the given collaborators.
func New(builder Builder, cloner Cloner) *Resolver {
	return &Resolver{builder: builder, cloner: cloner}
}

// Resolve computes the desired state for the request. Pinned requests
// resolve without building; remote requests clone first and leave the
// checkout in Result.CloneDir for the caller to clean up.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	if req.Version != "" {
		return r.resolvePinned(req)
	}

	if req.Repo != "" {
		return r.resolveRemote(ctx, req)
	}

	path := req.Path
	if path == "" {
		path = "."
	}
	return r.resolveLocal(ctx, path, "")
}

func (r *Resolver) resolvePinned(req Request) (Result, error) {
	repo, err := xpkg.ParseRepo(req.Repo)
	if err != nil {
		return Result{}, err
	}

	version := strings.TrimSpace(req.Version)
	if version == "" {
		return Result{}, fmt.Errorf("version cannot be empty")
	}
	if req.Reload {
		return Result{}, fmt.Errorf("%w: a version-pinned package has no revisions to reload", ErrUnsupportedOption)
	}

	return Result{
		Name: repo.ConfigurationName(),
		Configuration: xpkg.Ref{
			Kind:  xpkg.KindConfiguration,
			Image: fmt.Sprintf("ghcr.io/%s/%s:%s", repo.Org, repo.Name, version),
		},
		Pinned: true,
	}, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, req Request) (Result, error) {
	repo, err := xpkg.ParseRepo(req.Repo)
	if err != nil {
		return Result{}, err
	}

	cloneDir, err := os.MkdirTemp("", fmt.Sprintf("hops-config-%s-*", repo.ConfigurationName()))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create clone directory: %w", err)
	}

	if err := r.cloner.Clone(ctx, repo.CloneURL(), cloneDir); err != nil {
		os.RemoveAll(cloneDir)
		return Result{}, err
	}

	result, err := r.resolveLocal(ctx, cloneDir, cloneDir)
	if err != nil {
		os.RemoveAll(cloneDir)
		return Result{}, err
	}
	return result, nil
}

func (r *Resolver) resolveLocal(ctx context.Context, path, cloneDir string) (Result, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return Result{}, fmt.Errorf("%s is not a directory", path)
	}

	if err := r.builder.Build(ctx, path); err != nil {
		return Result{}, fmt.Errorf("package build failed: %w", err)
	}

	refs, artifacts, err := ScanOutput(filepath.Join(path, "_output"))
	if err != nil {
		return Result{}, err
	}

	var configuration *xpkg.Ref
	var siblings []xpkg.Ref
	for _, ref := range refs {
		if ref.Kind == xpkg.KindConfiguration {
			if configuration != nil {
				return Result{}, fmt.Errorf("build produced multiple configuration images: %s and %s", configuration.Image, ref.Image)
			}
			ref := ref
			configuration = &ref
			continue
		}
		siblings = append(siblings, ref)
	}
	if configuration == nil {
		return Result{}, fmt.Errorf("build produced no configuration image in %s", filepath.Join(path, "_output"))
	}

	imagePath, _ := xpkg.SplitRef(configuration.Image)
	name := imagePath
	if slash := strings.LastIndex(imagePath, "/"); slash >= 0 {
		name = imagePath[slash+1:]
	}

	return Result{
		Name:          xpkg.SanitizeName(name),
		Configuration: *configuration,
		Siblings:      siblings,
		Artifacts:     artifacts,
		CloneDir:      cloneDir,
	}, nil
}

// ScanOutput reads the built artifacts in dir and classifies every tagged
// image into a package ref. Duplicate tags across artifacts collapse.
func ScanOutput(dir string) ([]xpkg.Ref, []string, error) {
	artifacts, err := uppkg.List(dir)
	if err != nil {
		return nil, nil, err
	}
	if len(artifacts) == 0 {
		return nil, nil, fmt.Errorf("no %s files found in %s", uppkg.Extension, dir)
	}

	seen := map[string]bool{}
	var refs []xpkg.Ref
	for _, artifact := range artifacts {
		images, err := uppkg.Images(artifact)
		if err != nil {
			return nil, nil, err
		}
		for _, image := range images {
			if seen[image] {
				continue
			}
			seen[image] = true
			refs = append(refs, xpkg.Ref{Kind: Classify(image), Image: image})
		}
	}

	return refs, artifacts, nil
}

// Classify maps a built image tag to its package kind. Configuration images
// carry the "configuration" tag; render pipelines are Functions; provider
// builds keep "provider" in the repository path.
func Classify(image string) xpkg.Kind {
	path, tag := xpkg.SplitRef(image)
	switch {
	case tag == "configuration":
		return xpkg.KindConfiguration
	case strings.HasSuffix(path, "_render"):
		return xpkg.KindFunction
	case strings.Contains(filepath.Base(path), "provider"):
		return xpkg.KindProvider
	default:
		return xpkg.KindFunction
	}
}

// IsRenderImage reports whether the image is a locally built render
// function, which needs its OCI config rebuilt before pushing.
func IsRenderImage(image string) bool {
	path, _ := xpkg.SplitRef(image)
	return strings.HasSuffix(path, "_render")
}
