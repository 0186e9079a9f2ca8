package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hops-ops/hops/internal/util/execx"
	"github.com/hops-ops/hops/internal/xpkg"
)

// Docker wraps the docker CLI operations the publish pipeline needs.
type Docker interface {
	// Load imports a docker-save tarball and returns the loaded image tags.
	Load(ctx context.Context, path string) ([]string, error)

	// Tag adds a tag to an existing image.
	Tag(ctx context.Context, source, target string) error

	// Push uploads an image.
	Push(ctx context.Context, image string) error

	// PushForDigest uploads an image and returns the pushed manifest digest.
	PushForDigest(ctx context.Context, image string) (string, error)

	// BuildFrom rebuilds an image as a plain `FROM source`, which produces a
	// valid OCI config for images whose rootfs metadata is broken.
	BuildFrom(ctx context.Context, source, target string) error

	// BuildPatched builds a copy of the source image with package.yaml
	// replaced and returns the resulting tag.
	BuildPatched(ctx context.Context, source, packageYAML string) (string, error)
}

type execDocker struct{}

// NewDocker creates the default CLI-backed Docker.
func NewDocker() Docker {
	return execDocker{}
}

func (execDocker) Load(ctx context.Context, path string) ([]string, error) {
	out, err := execx.Output(ctx, "docker", "load", "-i", path)
	if err != nil {
		return nil, err
	}
	return parseLoadedImages(out), nil
}

func (execDocker) Tag(ctx context.Context, source, target string) error {
	return execx.Run(ctx, "docker", "tag", source, target)
}

func (execDocker) Push(ctx context.Context, image string) error {
	return execx.Run(ctx, "docker", "push", image)
}

func (execDocker) PushForDigest(ctx context.Context, image string) (string, error) {
	out, err := execx.CombinedOutput(ctx, "docker", "push", image)
	if err != nil {
		return "", err
	}

	digest := parsePushDigest(out)
	if digest == "" {
		return "", fmt.Errorf("unable to parse digest from docker push output for %s", image)
	}
	return digest, nil
}

func (execDocker) BuildFrom(ctx context.Context, source, target string) error {
	dockerfile := fmt.Sprintf("FROM %s\n", source)
	return execx.RunWithInput(ctx, dockerfile, "docker", "build", "-t", target, "-")
}

func (execDocker) BuildPatched(ctx context.Context, source, packageYAML string) (string, error) {
	buildDir, err := os.MkdirTemp("", "hops-config-patch-*")
	if err != nil {
		return "", fmt.Errorf("failed to create build directory: %w", err)
	}
	defer os.RemoveAll(buildDir)

	if err := os.WriteFile(filepath.Join(buildDir, "package.yaml"), []byte(packageYAML), 0o644); err != nil {
		return "", fmt.Errorf("failed to write package.yaml: %w", err)
	}

	dockerfile := fmt.Sprintf("FROM %s AS src\nFROM scratch\nCOPY --from=src / /\nCOPY package.yaml /package.yaml\n", source)
	if err := os.WriteFile(filepath.Join(buildDir, "Dockerfile"), []byte(dockerfile), 0o644); err != nil {
		return "", fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	target := fmt.Sprintf("hops-local/config-patched-%s:%d", xpkg.ShortHash(source), os.Getpid())
	if err := execx.Run(ctx, "docker", "build", "-t", target, buildDir); err != nil {
		return "", err
	}
	return target, nil
}

// parseLoadedImages extracts image tags from `docker load` output.
func parseLoadedImages(output string) []string {
	var images []string
	for _, line := range strings.Split(output, "\n") {
		if img, ok := strings.CutPrefix(line, "Loaded image: "); ok {
			images = append(images, strings.TrimSpace(img))
		}
	}
	return images
}

// parsePushDigest extracts the manifest digest from `docker push` output.
func parsePushDigest(output string) string {
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, "digest: sha256:")
		if idx < 0 {
			continue
		}
		rest := line[idx+len("digest: "):]
		if fields := strings.Fields(rest); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// Arch returns the docker platform architecture name for this host. Go's
// GOARCH values match docker's platform names, so no translation is needed.
func Arch() string {
	return runtime.GOARCH
}
