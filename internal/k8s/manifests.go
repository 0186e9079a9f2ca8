package k8s

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/dynamic"
)

// ApplyManifests decodes multi-document YAML and applies every object with
// server-side apply. Scope and resource are resolved per object through the
// REST mapper.
func (c *client) ApplyManifests(ctx context.Context, manifests []byte) error {
	if c.mapper == nil {
		return fmt.Errorf("client has no REST mapper configured")
	}

	decoder := yaml.NewYAMLOrJSONDecoder(bytes.NewReader(manifests), 4096)
	for {
		obj := &unstructured.Unstructured{}
		if err := decoder.Decode(obj); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode manifest: %w", err)
		}
		// Empty documents (comments, trailing separators) decode to nothing.
		if len(obj.Object) == 0 {
			continue
		}
		if err := c.applyMapped(ctx, obj); err != nil {
			return err
		}
	}
}

func (c *client) applyMapped(ctx context.Context, obj *unstructured.Unstructured) error {
	gvk := obj.GroupVersionKind()
	mapping, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return fmt.Errorf("failed to resolve mapping for %s %q: %w", gvk.Kind, obj.GetName(), err)
	}

	var ri dynamic.ResourceInterface
	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		namespace := obj.GetNamespace()
		if namespace == "" {
			namespace = "default"
		}
		ri = c.dynamic.Resource(mapping.Resource).Namespace(namespace)
	} else {
		ri = c.dynamic.Resource(mapping.Resource)
	}

	data, err := obj.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal %s %q: %w", gvk.Kind, obj.GetName(), err)
	}

	if _, err := ri.Patch(ctx, obj.GetName(), types.ApplyPatchType, data, metav1.PatchOptions{FieldManager: FieldManager}); err != nil {
		return fmt.Errorf("failed to apply %s %q: %w", gvk.Kind, obj.GetName(), err)
	}
	return nil
}
