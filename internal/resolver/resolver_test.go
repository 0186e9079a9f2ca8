package resolver

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hops-ops/hops/internal/xpkg"
)

// artifactBytes assembles a docker-save style tarball containing only a
// manifest.json with the given repo tags.
func artifactBytes(tags []string) ([]byte, error) {
	manifest, err := json.Marshal([]map[string]interface{}{
		{"Config": "config.json", "RepoTags": tags, "Layers": []string{}},
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: "manifest.json", Mode: 0o644, Size: int64(len(manifest))}); err != nil {
		return nil, err
	}
	if _, err := tw.Write(manifest); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeArtifact(t *testing.T, path string, tags ...string) {
	t.Helper()
	data, err := artifactBytes(tags)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// fakeBuilder populates _output with the given image tags per artifact.
type fakeBuilder struct {
	artifacts map[string][]string
	calls     int
}

func (b *fakeBuilder) Build(_ context.Context, dir string) error {
	b.calls++
	outDir := filepath.Join(dir, "_output")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for name, tags := range b.artifacts {
		data, err := artifactBytes(tags)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(outDir, name), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

type fakeCloner struct {
	url   string
	calls int
}

func (c *fakeCloner) Clone(_ context.Context, url, dir string) error {
	c.calls++
	c.url = url
	return os.MkdirAll(dir, 0o755)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, xpkg.KindConfiguration, Classify("ghcr.io/hops-ops/helm-airflow:configuration"))
	assert.Equal(t, xpkg.KindFunction, Classify("ghcr.io/hops-ops/helm-airflow_render:arm64"))
	assert.Equal(t, xpkg.KindProvider, Classify("ghcr.io/hops-ops/provider-dummy:v0.1.0"))
	assert.Equal(t, xpkg.KindFunction, Classify("ghcr.io/hops-ops/some-helper:latest"))
}

func TestResolvePinned(t *testing.T) {
	t.Parallel()
	builder := &fakeBuilder{}
	r := New(builder, &fakeCloner{})

	result, err := r.Resolve(context.Background(), Request{Repo: "hops-ops/helm-certmanager", Version: "v0.7.0"})
	require.NoError(t, err)

	assert.True(t, result.Pinned)
	assert.Equal(t, "hops-ops-helm-certmanager", result.Name)
	assert.Equal(t, xpkg.KindConfiguration, result.Configuration.Kind)
	assert.Equal(t, "ghcr.io/hops-ops/helm-certmanager:v0.7.0", result.Configuration.Image)
	assert.Empty(t, result.Siblings)
	assert.Zero(t, builder.calls)
}

func TestResolvePinnedRejectsReload(t *testing.T) {
	t.Parallel()
	builder := &fakeBuilder{}
	r := New(builder, &fakeCloner{})

	_, err := r.Resolve(context.Background(), Request{Repo: "hops-ops/helm-certmanager", Version: "v0.7.0", Reload: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedOption)
	assert.Zero(t, builder.calls)
}

func TestResolveLocal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	builder := &fakeBuilder{artifacts: map[string][]string{
		"helm-airflow.uppkg": {
			"ghcr.io/hops-ops/helm-airflow:configuration",
			"ghcr.io/hops-ops/helm-airflow_render:arm64",
		},
	}}
	r := New(builder, &fakeCloner{})

	result, err := r.Resolve(context.Background(), Request{Path: dir})
	require.NoError(t, err)

	assert.Equal(t, "helm-airflow", result.Name)
	assert.Equal(t, "ghcr.io/hops-ops/helm-airflow:configuration", result.Configuration.Image)
	require.Len(t, result.Siblings, 1)
	assert.Equal(t, xpkg.KindFunction, result.Siblings[0].Kind)
	assert.Len(t, result.Artifacts, 1)
	assert.Empty(t, result.CloneDir)
	assert.False(t, result.Pinned)
	assert.Equal(t, 1, builder.calls)
}

func TestResolveLocalRejectsMultipleConfigurations(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	builder := &fakeBuilder{artifacts: map[string][]string{
		"a.uppkg": {"ghcr.io/hops-ops/a:configuration"},
		"b.uppkg": {"ghcr.io/hops-ops/b:configuration"},
	}}
	r := New(builder, &fakeCloner{})

	_, err := r.Resolve(context.Background(), Request{Path: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple configuration images")
}

func TestResolveLocalRequiresConfigurationImage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	builder := &fakeBuilder{artifacts: map[string][]string{
		"a.uppkg": {"ghcr.io/hops-ops/a_render:arm64"},
	}}
	r := New(builder, &fakeCloner{})

	_, err := r.Resolve(context.Background(), Request{Path: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no configuration image")
}

func TestResolveRemoteClonesThenBuilds(t *testing.T) {
	t.Parallel()
	builder := &fakeBuilder{artifacts: map[string][]string{
		"helm-certmanager.uppkg": {"ghcr.io/hops-ops/helm-certmanager:configuration"},
	}}
	cloner := &fakeCloner{}
	r := New(builder, cloner)

	result, err := r.Resolve(context.Background(), Request{Repo: "https://github.com/hops-ops/helm-certmanager.git"})
	require.NoError(t, err)
	defer os.RemoveAll(result.CloneDir)

	assert.Equal(t, "https://github.com/hops-ops/helm-certmanager", cloner.url)
	assert.NotEmpty(t, result.CloneDir)
	assert.Equal(t, "helm-certmanager", result.Name)
	assert.Equal(t, 1, builder.calls)
}

func TestScanOutputCollapsesDuplicates(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeArtifact(t, filepath.Join(dir, "a.uppkg"),
		"ghcr.io/hops-ops/helm-airflow:configuration",
		"ghcr.io/hops-ops/helm-airflow_render:arm64")
	writeArtifact(t, filepath.Join(dir, "b.uppkg"),
		"ghcr.io/hops-ops/helm-airflow_render:arm64")

	refs, artifacts, err := ScanOutput(dir)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
	assert.Len(t, artifacts, 2)
}

func TestScanOutputEmptyDirFails(t *testing.T) {
	t.Parallel()

	_, _, err := ScanOutput(t.TempDir())
	assert.Error(t, err)
}
