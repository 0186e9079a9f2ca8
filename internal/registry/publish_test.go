package registry

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	dynfake "k8s.io/client-go/dynamic/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"

	"github.com/hops-ops/hops/internal/k8s"
	"github.com/hops-ops/hops/internal/xpkg"
)

type fakeDocker struct {
	loads   map[string][]string
	digests map[string]string

	tagged    [][2]string
	pushed    []string
	builtFrom [][2]string
	patchYAML string
}

func (d *fakeDocker) Load(_ context.Context, path string) ([]string, error) {
	images, ok := d.loads[path]
	if !ok {
		return nil, fmt.Errorf("unknown artifact %s", path)
	}
	return images, nil
}

func (d *fakeDocker) Tag(_ context.Context, source, target string) error {
	d.tagged = append(d.tagged, [2]string{source, target})
	return nil
}

func (d *fakeDocker) Push(_ context.Context, image string) error {
	d.pushed = append(d.pushed, image)
	return nil
}

func (d *fakeDocker) PushForDigest(_ context.Context, image string) (string, error) {
	d.pushed = append(d.pushed, image)
	digest, ok := d.digests[image]
	if !ok {
		return "", fmt.Errorf("no digest configured for %s", image)
	}
	return digest, nil
}

func (d *fakeDocker) BuildFrom(_ context.Context, source, target string) error {
	d.builtFrom = append(d.builtFrom, [2]string{source, target})
	return nil
}

func (d *fakeDocker) BuildPatched(_ context.Context, source, packageYAML string) (string, error) {
	d.patchYAML = packageYAML
	return "hops-local/config-patched-" + xpkg.ShortHash(source) + ":test", nil
}

// writeArtifact assembles a docker-save style tarball holding the
// configuration image's package.yaml in a single layer.
func writeArtifact(t *testing.T, path, image, packageYAML string) {
	t.Helper()

	var layerBuf bytes.Buffer
	gz := gzip.NewWriter(&layerBuf)
	ltw := tar.NewWriter(gz)
	require.NoError(t, ltw.WriteHeader(&tar.Header{Name: "package.yaml", Mode: 0o644, Size: int64(len(packageYAML))}))
	_, err := ltw.Write([]byte(packageYAML))
	require.NoError(t, err)
	require.NoError(t, ltw.Close())
	require.NoError(t, gz.Close())

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	addFile := func(name string, data []byte) {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}
	addFile("layer.tar.gz", layerBuf.Bytes())

	config, err := json.Marshal(map[string]interface{}{"config": map[string]interface{}{}})
	require.NoError(t, err)
	addFile("config.json", config)

	manifest, err := json.Marshal([]map[string]interface{}{{
		"Config":   "config.json",
		"RepoTags": []string{image},
		"Layers":   []string{"layer.tar.gz"},
	}})
	require.NoError(t, err)
	addFile("manifest.json", manifest)
	require.NoError(t, tw.Close())

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func imageConfigStub(name string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "pkg.crossplane.io/v1beta1",
		"kind":       "ImageConfig",
		"metadata":   map[string]interface{}{"name": name},
	}}
}

func TestPublishPinsRenderDigestsAndReturnsPullRefs(t *testing.T) {
	t.Parallel()

	const (
		configImage = "ghcr.io/hops-ops/helm-airflow:configuration"
		renderPath  = "ghcr.io/hops-ops/helm-airflow_render"
	)

	artifact := filepath.Join(t.TempDir(), "helm-airflow.uppkg")
	writeArtifact(t, artifact, configImage, `spec:
  dependsOn:
  - kind: Function
    package: ghcr.io/hops-ops/helm-airflow_render
    version: sha256:old
`)

	docker := &fakeDocker{
		loads: map[string][]string{artifact: {
			configImage,
			renderPath + ":arm64",
			renderPath + ":amd64",
		}},
		digests: map[string]string{
			"localhost:30500/hops-ops/helm-airflow_render:arm64": "sha256:rendered",
		},
	}

	// The fake dynamic client only patches what exists, so the ImageConfig
	// the publisher applies is pre-created.
	dyn := dynfake.NewSimpleDynamicClient(runtime.NewScheme(), imageConfigStub(xpkg.ImageConfigName(renderPath)))
	client := k8s.NewFromClients(k8sfake.NewSimpleClientset(), dyn)

	publisher := NewPublisher(client, docker)
	publisher.arch = "arm64"

	pullRefs, err := publisher.Publish(context.Background(), []string{artifact})
	require.NoError(t, err)
	assert.Equal(t, []string{"registry.crossplane-system.svc.cluster.local:5000/hops-ops/helm-airflow:configuration"}, pullRefs)

	// Both render tags are rebuilt, only the host arch yields a digest.
	assert.ElementsMatch(t, [][2]string{
		{renderPath + ":arm64", "localhost:30500/hops-ops/helm-airflow_render:arm64"},
		{renderPath + ":amd64", "localhost:30500/hops-ops/helm-airflow_render:amd64"},
	}, docker.builtFrom)

	// The configuration is patched with the pushed digest before pushing.
	assert.Contains(t, docker.patchYAML, "version: sha256:rendered")
	assert.Contains(t, docker.pushed, "localhost:30500/hops-ops/helm-airflow:configuration")

	ic, err := client.Get(context.Background(), xpkg.ImageConfigsGVR, "", xpkg.ImageConfigName(renderPath))
	require.NoError(t, err)
	prefix, _, err := unstructured.NestedString(ic.Object, "spec", "rewriteImage", "prefix")
	require.NoError(t, err)
	assert.Equal(t, "registry.crossplane-system.svc.cluster.local:5000/hops-ops/helm-airflow_render", prefix)
}

func TestPublishTagsAndPushesPlainImages(t *testing.T) {
	t.Parallel()

	artifact := filepath.Join(t.TempDir(), "provider.uppkg")
	writeArtifact(t, artifact, "unused:configuration", "kind: Configuration\n")

	docker := &fakeDocker{
		loads: map[string][]string{artifact: {"ghcr.io/hops-ops/provider-foo:v1"}},
	}
	client := k8s.NewFromClients(k8sfake.NewSimpleClientset(), dynfake.NewSimpleDynamicClient(runtime.NewScheme()))

	pullRefs, err := NewPublisher(client, docker).Publish(context.Background(), []string{artifact})
	require.NoError(t, err)
	assert.Empty(t, pullRefs)

	assert.Equal(t, [][2]string{{"ghcr.io/hops-ops/provider-foo:v1", "localhost:30500/hops-ops/provider-foo:v1"}}, docker.tagged)
	assert.Equal(t, []string{"localhost:30500/hops-ops/provider-foo:v1"}, docker.pushed)
}

func TestPublishDeduplicatesImagesAcrossArtifacts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "a.uppkg")
	second := filepath.Join(dir, "b.uppkg")
	writeArtifact(t, first, "unused:configuration", "kind: Configuration\n")
	writeArtifact(t, second, "unused:configuration", "kind: Configuration\n")

	docker := &fakeDocker{loads: map[string][]string{
		first:  {"ghcr.io/hops-ops/shared:v1"},
		second: {"ghcr.io/hops-ops/shared:v1"},
	}}
	client := k8s.NewFromClients(k8sfake.NewSimpleClientset(), dynfake.NewSimpleDynamicClient(runtime.NewScheme()))

	_, err := NewPublisher(client, docker).Publish(context.Background(), []string{first, second})
	require.NoError(t, err)
	assert.Len(t, docker.pushed, 1)
}

func TestPublishFailsWithoutImages(t *testing.T) {
	t.Parallel()

	artifact := filepath.Join(t.TempDir(), "empty.uppkg")
	writeArtifact(t, artifact, "unused:configuration", "kind: Configuration\n")

	docker := &fakeDocker{loads: map[string][]string{artifact: nil}}
	client := k8s.NewFromClients(k8sfake.NewSimpleClientset(), dynfake.NewSimpleDynamicClient(runtime.NewScheme()))

	_, err := NewPublisher(client, docker).Publish(context.Background(), []string{artifact})
	assert.Error(t, err)
}
