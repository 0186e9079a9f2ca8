// Package uppkg reads the docker-save tarballs (.uppkg) that the project
// build emits under _output/: the image tags they carry and the Crossplane
// package metadata embedded in configuration images.
package uppkg

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extension is the file extension of built package artifacts.
const Extension = ".uppkg"

// manifestEntry is one image in a docker-save manifest.json.
type manifestEntry struct {
	Config   string   `json:"Config"`
	RepoTags []string `json:"RepoTags"`
	Layers   []string `json:"Layers"`
}

// imageConfig is the subset of the OCI image config we read labels from.
type imageConfig struct {
	Config struct {
		Labels map[string]string `json:"Labels"`
	} `json:"config"`
}

// List returns the package artifact paths in dir, sorted by filename.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

// Images returns the image references tagged in the artifact's manifest.
func Images(path string) ([]string, error) {
	entries, err := readManifest(path)
	if err != nil {
		return nil, err
	}

	var images []string
	for _, entry := range entries {
		images = append(images, entry.RepoTags...)
	}
	return images, nil
}

// PackageYAML extracts the package.yaml of the given image from the
// artifact. The base layer is located through the io.crossplane.xpkg label,
// falling back to the first layer.
func PackageYAML(path, image string) (string, error) {
	entries, err := readManifest(path)
	if err != nil {
		return "", err
	}

	var found *manifestEntry
	for i := range entries {
		for _, tag := range entries[i].RepoTags {
			if tag == image {
				found = &entries[i]
				break
			}
		}
	}
	if found == nil {
		return "", fmt.Errorf("image %q not found in manifest of %s", image, path)
	}
	if len(found.Layers) == 0 {
		return "", fmt.Errorf("image %q has no layers in %s", image, path)
	}

	layer := found.Layers[0]
	if configJSON, err := readEntry(path, found.Config); err == nil {
		var cfg imageConfig
		if err := json.Unmarshal(configJSON, &cfg); err == nil {
			for key, value := range cfg.Config.Labels {
				if value != "base" {
					continue
				}
				digest, ok := strings.CutPrefix(key, "io.crossplane.xpkg:sha256:")
				if !ok {
					continue
				}
				candidate := digest + ".tar.gz"
				for _, l := range found.Layers {
					if l == candidate {
						layer = candidate
					}
				}
			}
		}
	}

	layerBytes, err := readEntry(path, layer)
	if err != nil {
		return "", err
	}

	gz, err := gzip.NewReader(strings.NewReader(string(layerBytes)))
	if err != nil {
		return "", fmt.Errorf("failed to decompress layer %q of %s: %w", layer, path, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read layer %q of %s: %w", layer, path, err)
		}
		if strings.TrimPrefix(hdr.Name, "./") == "package.yaml" {
			contents, err := io.ReadAll(tr)
			if err != nil {
				return "", fmt.Errorf("failed to read package.yaml from %s: %w", path, err)
			}
			return string(contents), nil
		}
	}

	return "", fmt.Errorf("package.yaml not found in layer %q of %s", layer, path)
}

func readManifest(path string) ([]manifestEntry, error) {
	data, err := readEntry(path, "manifest.json")
	if err != nil {
		return nil, err
	}

	var entries []manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse manifest of %s: %w", path, err)
	}
	return entries, nil
}

func readEntry(tarPath, name string) ([]byte, error) {
	f, err := os.Open(tarPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", tarPath, err)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", tarPath, err)
		}
		if strings.TrimPrefix(hdr.Name, "./") == name {
			return io.ReadAll(tr)
		}
	}

	return nil, fmt.Errorf("entry %q not found in %s", name, tarPath)
}
