// Package xpkg models Crossplane package identities: the (kind, image)
// pair that identifies an installable package, the naming conventions the
// CLI derives resource names from, and the GVRs of the package machinery.
package xpkg

import (
	"fmt"
	"hash/fnv"
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Kind is the Crossplane package kind.
type Kind string

const (
	KindConfiguration Kind = "Configuration"
	KindFunction      Kind = "Function"
	KindProvider      Kind = "Provider"
)

// Ref identifies an installable package by kind and image reference.
// Immutable once computed.
type Ref struct {
	Kind  Kind
	Image string
}

// Source returns the image repository without tag or digest. Two refs with
// the same source are the same logical package at (possibly) different
// versions.
func (r Ref) Source() string {
	return Source(r.Image)
}

func (r Ref) String() string {
	return fmt.Sprintf("%s %s", r.Kind, r.Image)
}

// Source strips the tag or digest from an image reference.
//
//	ghcr.io/hops-ops/helm-airflow:v0.7.0      -> ghcr.io/hops-ops/helm-airflow
//	registry:5000/org/pkg@sha256:abc          -> registry:5000/org/pkg
func Source(image string) string {
	trimmed := strings.TrimSpace(image)
	if source, _, ok := strings.Cut(trimmed, "@"); ok {
		return source
	}

	// Only a colon after the last slash is a tag separator; earlier colons
	// belong to a registry port.
	if slash := strings.LastIndex(trimmed, "/"); slash >= 0 {
		if colon := strings.LastIndex(trimmed[slash+1:], ":"); colon >= 0 {
			return trimmed[:slash+1+colon]
		}
		return trimmed
	}
	if colon := strings.LastIndex(trimmed, ":"); colon >= 0 {
		return trimmed[:colon]
	}
	return trimmed
}

// SplitRef splits "path:tag" into its path and tag. Images without a tag
// default to "latest".
func SplitRef(image string) (path, tag string) {
	if slash := strings.LastIndex(image, "/"); slash >= 0 {
		if colon := strings.LastIndex(image[slash+1:], ":"); colon >= 0 {
			return image[:slash+1+colon], image[slash+2+colon:]
		}
		return image, "latest"
	}
	if colon := strings.LastIndex(image, ":"); colon >= 0 {
		return image[:colon], image[colon+1:]
	}
	return image, "latest"
}

// StripRegistry removes a registry prefix from an image path. A leading
// path component is treated as a registry when it contains a dot or a port.
func StripRegistry(path string) string {
	if slash := strings.Index(path, "/"); slash >= 0 {
		prefix := path[:slash]
		if strings.ContainsAny(prefix, ".:") {
			return path[slash+1:]
		}
	}
	return path
}

// RewriteRegistry replaces the registry portion of an image reference.
func RewriteRegistry(image, registry string) string {
	path, tag := SplitRef(image)
	return fmt.Sprintf("%s/%s:%s", registry, StripRegistry(path), tag)
}

// SanitizeName normalizes a string into a DNS-safe Kubernetes name
// component: lowercase alphanumerics separated by single dashes.
func SanitizeName(input string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(input) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		} else {
			b.WriteRune('-')
		}
	}

	out := b.String()
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	out = strings.Trim(out, "-")
	if out == "" {
		return "xrd"
	}
	return out
}

// Repo is a GitHub repository slug.
type Repo struct {
	Org  string
	Name string
}

// ConfigurationName derives the Configuration resource name for the repo.
func (r Repo) ConfigurationName() string {
	return fmt.Sprintf("%s-%s", SanitizeName(r.Org), SanitizeName(r.Name))
}

// CloneURL returns the HTTPS clone URL for the repo.
func (r Repo) CloneURL() string {
	return fmt.Sprintf("https://github.com/%s/%s", r.Org, r.Name)
}

// ParseRepo parses "<org>/<repo>", accepting full GitHub URLs and a
// trailing ".git" suffix.
func ParseRepo(repo string) (Repo, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(repo), "/")
	if trimmed == "" {
		return Repo{}, fmt.Errorf("repository cannot be empty")
	}

	for _, prefix := range []string{"https://github.com/", "http://github.com/", "github.com/"} {
		if rest, ok := strings.CutPrefix(trimmed, prefix); ok {
			trimmed = rest
			break
		}
	}
	trimmed = strings.TrimSuffix(trimmed, ".git")

	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Repo{}, fmt.Errorf("invalid repository %q: expected <org>/<repo>", repo)
	}

	return Repo{Org: parts[0], Name: parts[1]}, nil
}

// ImageConfigName derives a deterministic, length-bounded resource name for
// the ImageConfig rewriting pulls of the given package source.
func ImageConfigName(source string) string {
	const prefix = "hops-local-rewrite-"

	hash := ShortHash(source)
	body := SanitizeName(source)
	if body == "xrd" {
		body = "image"
	}

	// Kubernetes names are capped at 63 characters.
	maxBody := 63 - len(prefix) - len(hash) - 1
	if len(body) > maxBody {
		body = body[:maxBody]
	}

	return fmt.Sprintf("%s%s-%s", prefix, body, hash)
}

// ShortHash returns a short stable hex digest of the input, used to keep
// derived resource names unique after truncation.
func ShortHash(input string) string {
	h := fnv.New64a()
	h.Write([]byte(input))
	return fmt.Sprintf("%016x", h.Sum64())[:8]
}

// GVRs for the Crossplane package machinery.
var (
	ConfigurationsGVR         = pkgGVR("v1", "configurations")
	ConfigurationRevisionsGVR = pkgGVR("v1", "configurationrevisions")
	FunctionsGVR              = pkgGVR("v1", "functions")
	FunctionRevisionsGVR      = pkgGVR("v1", "functionrevisions")
	ProvidersGVR              = pkgGVR("v1", "providers")
	ProviderRevisionsGVR      = pkgGVR("v1", "providerrevisions")
	LocksGVR                  = pkgGVR("v1beta1", "locks")
	ImageConfigsGVR           = pkgGVR("v1beta1", "imageconfigs")
)

// PackageGVR returns the package resource GVR for a kind.
func PackageGVR(kind Kind) schema.GroupVersionResource {
	switch kind {
	case KindFunction:
		return FunctionsGVR
	case KindProvider:
		return ProvidersGVR
	default:
		return ConfigurationsGVR
	}
}

// RevisionGVR returns the package revision GVR for a kind.
func RevisionGVR(kind Kind) schema.GroupVersionResource {
	switch kind {
	case KindFunction:
		return FunctionRevisionsGVR
	case KindProvider:
		return ProviderRevisionsGVR
	default:
		return ConfigurationRevisionsGVR
	}
}

func pkgGVR(version, resource string) schema.GroupVersionResource {
	return schema.GroupVersionResource{Group: "pkg.crossplane.io", Version: version, Resource: resource}
}
