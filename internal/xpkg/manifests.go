package xpkg

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// ConfigurationManifest builds a Configuration that installs the given
// package. Pull policy is Always so a re-pushed tag is picked up.
func ConfigurationManifest(name, image string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "pkg.crossplane.io/v1",
		"kind":       "Configuration",
		"metadata":   map[string]interface{}{"name": name},
		"spec": map[string]interface{}{
			"package":           image,
			"packagePullPolicy": "Always",
		},
	}}
}

// ProviderManifest builds a Provider that installs the given package.
func ProviderManifest(name, image string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "pkg.crossplane.io/v1",
		"kind":       "Provider",
		"metadata":   map[string]interface{}{"name": name},
		"spec": map[string]interface{}{
			"package": image,
		},
	}}
}

// ImageConfigManifest builds an ImageConfig that rewrites pulls of images
// under matchPrefix to rewritePrefix.
func ImageConfigManifest(name, matchPrefix, rewritePrefix string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "pkg.crossplane.io/v1beta1",
		"kind":       "ImageConfig",
		"metadata":   map[string]interface{}{"name": name},
		"spec": map[string]interface{}{
			"matchImages": []interface{}{
				map[string]interface{}{"type": "Prefix", "prefix": matchPrefix},
			},
			"rewriteImage": map[string]interface{}{"prefix": rewritePrefix},
		},
	}}
}

// PackageSourceOf extracts the package source from an installed package or
// revision object. Packages reference their image under spec.package,
// revisions under spec.image.
func PackageSourceOf(obj *unstructured.Unstructured) string {
	for _, key := range []string{"package", "image"} {
		if value, ok, _ := unstructured.NestedString(obj.Object, "spec", key); ok && value != "" {
			return Source(value)
		}
	}
	return ""
}
