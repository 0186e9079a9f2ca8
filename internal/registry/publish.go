package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/hops-ops/hops/internal/k8s"
	"github.com/hops-ops/hops/internal/uppkg"
	"github.com/hops-ops/hops/internal/util/retry"
	"github.com/hops-ops/hops/internal/xpkg"
)

// Publisher pushes locally built package images into the registry and
// applies the image rewrites the cluster needs to pull them.
type Publisher struct {
	client k8s.Client
	docker Docker

	// arch selects which render function tag gets its digest captured for
	// dependency pinning.
	arch string
}

// NewPublisher creates a Publisher for this host's architecture.
func NewPublisher(client k8s.Client, docker Docker) *Publisher {
	return &Publisher{client: client, docker: docker, arch: Arch()}
}

type loadedImage struct {
	source   string
	artifact string
}

// Publish loads the build artifacts into Docker, pushes every image to the
// local registry, and returns the in-cluster pull refs of the configuration
// images, ready to be applied.
//
// Render functions built for this host get their pushed digest pinned into
// the configuration's package metadata, and an ImageConfig rewrite redirects
// their pulls to the local registry. spec.package keeps the original source
// so dependency resolution stays enabled.
func (p *Publisher) Publish(ctx context.Context, artifacts []string) ([]string, error) {
	loaded, err := p.load(ctx, artifacts)
	if err != nil {
		return nil, err
	}

	rewrites := make(map[string]RenderRewrite)
	for _, img := range loaded {
		if isConfigurationImage(img.source) {
			continue
		}

		pushRef := xpkg.RewriteRegistry(img.source, PushAddress)
		path, tag := xpkg.SplitRef(img.source)

		switch {
		case isRenderImage(img.source):
			log.Printf("Rebuilding %s (fix OCI config)...", pushRef)
			if err := p.docker.BuildFrom(ctx, img.source, pushRef); err != nil {
				return nil, err
			}
			if tag == p.arch {
				digest, err := p.pushForDigest(ctx, pushRef)
				if err != nil {
					return nil, err
				}
				rewrites[path] = RenderRewrite{
					Digest:       digest,
					TargetPrefix: PullAddress + "/" + xpkg.StripRegistry(path),
				}
			} else {
				if err := p.push(ctx, pushRef); err != nil {
					return nil, err
				}
			}
		default:
			if err := p.docker.Tag(ctx, img.source, pushRef); err != nil {
				return nil, err
			}
			if err := p.push(ctx, pushRef); err != nil {
				return nil, err
			}
		}
	}

	if err := p.applyRewrites(ctx, rewrites); err != nil {
		return nil, err
	}

	var pullRefs []string
	for _, img := range loaded {
		if !isConfigurationImage(img.source) {
			continue
		}
		pullRef, err := p.pushConfiguration(ctx, img, rewrites)
		if err != nil {
			return nil, err
		}
		pullRefs = append(pullRefs, pullRef)
	}
	return pullRefs, nil
}

// load imports each artifact and de-duplicates images that appear in more
// than one tarball.
func (p *Publisher) load(ctx context.Context, artifacts []string) ([]loadedImage, error) {
	var loaded []loadedImage
	seen := make(map[string]bool)
	for _, artifact := range artifacts {
		log.Printf("Loading %s...", artifact)
		images, err := p.docker.Load(ctx, artifact)
		if err != nil {
			return nil, err
		}
		for _, img := range images {
			if seen[img] {
				continue
			}
			seen[img] = true
			loaded = append(loaded, loadedImage{source: img, artifact: artifact})
		}
	}
	if len(loaded) == 0 {
		return nil, errors.New("no images were loaded from build artifacts")
	}
	return loaded, nil
}

func (p *Publisher) applyRewrites(ctx context.Context, rewrites map[string]RenderRewrite) error {
	sources := make([]string, 0, len(rewrites))
	for source := range rewrites {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	for _, source := range sources {
		rewrite := rewrites[source]
		log.Printf("Applying ImageConfig rewrite for %s -> %s...", source, rewrite.TargetPrefix)
		manifest := xpkg.ImageConfigManifest(xpkg.ImageConfigName(source), source, rewrite.TargetPrefix)
		if _, err := p.client.Apply(ctx, xpkg.ImageConfigsGVR, manifest); err != nil {
			return err
		}
	}
	return nil
}

// pushConfiguration pushes a configuration image, patching its package
// metadata first when local render digests need pinning.
func (p *Publisher) pushConfiguration(ctx context.Context, img loadedImage, rewrites map[string]RenderRewrite) (string, error) {
	pushRef := xpkg.RewriteRegistry(img.source, PushAddress)
	pullRef := xpkg.RewriteRegistry(img.source, PullAddress)

	sourceToPush := img.source
	packageYAML, err := uppkg.PackageYAML(img.artifact, img.source)
	if err != nil {
		return "", fmt.Errorf("failed to read package metadata for %s: %w", img.source, err)
	}

	if patched, changed := RewriteRenderDependencyVersions(packageYAML, rewrites); changed {
		log.Printf("Patching package metadata for %s to use local render digests...", img.source)
		sourceToPush, err = p.docker.BuildPatched(ctx, img.source, patched)
		if err != nil {
			return "", err
		}
	}

	if err := p.docker.Tag(ctx, sourceToPush, pushRef); err != nil {
		return "", err
	}
	if err := p.push(ctx, pushRef); err != nil {
		return "", err
	}
	return pullRef, nil
}

// push retries briefly; the registry's NodePort route can lag for a few
// seconds after the deployment first becomes available.
func (p *Publisher) push(ctx context.Context, ref string) error {
	log.Printf("Pushing %s...", ref)
	return retry.WithExponentialBackoff(ctx, func() error {
		return p.docker.Push(ctx, ref)
	}, retry.WithMaxRetries(3), retry.WithInitialDelay(2*time.Second))
}

func (p *Publisher) pushForDigest(ctx context.Context, ref string) (string, error) {
	log.Printf("Pushing %s...", ref)
	var digest string
	err := retry.WithExponentialBackoff(ctx, func() error {
		var pushErr error
		digest, pushErr = p.docker.PushForDigest(ctx, ref)
		return pushErr
	}, retry.WithMaxRetries(3), retry.WithInitialDelay(2*time.Second))
	return digest, err
}

func isConfigurationImage(image string) bool {
	_, tag := xpkg.SplitRef(image)
	return tag == "configuration"
}

func isRenderImage(image string) bool {
	path, _ := xpkg.SplitRef(image)
	return strings.HasSuffix(path, "_render")
}
