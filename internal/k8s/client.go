// Package k8s provides the cluster resource client used by the package
// lifecycle engines: typed get/list/apply/delete on arbitrary resources plus
// bounded condition waits.
package k8s

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
)

// FieldManager identifies this CLI in server-side apply operations.
const FieldManager = "hops"

// Client provides the cluster operations the lifecycle engines need.
type Client interface {
	// Get fetches a resource. Absence is reported through the returned
	// error; use IsNotFound to classify it.
	Get(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string) (*unstructured.Unstructured, error)

	// List returns all resources of the given GVR. Pass an empty namespace
	// for cluster-scoped resources.
	List(ctx context.Context, gvr schema.GroupVersionResource, namespace string) ([]unstructured.Unstructured, error)

	// Apply creates or updates a resource using server-side apply. The
	// object's namespace (empty for cluster-scoped) decides addressing.
	Apply(ctx context.Context, gvr schema.GroupVersionResource, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)

	// Delete removes a resource. An already-absent resource is not an
	// error; the returned bool reports whether anything was deleted.
	Delete(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string) (bool, error)

	// WaitFor polls the named resource until the condition is satisfied or
	// the timeout elapses. The condition receives nil while the resource is
	// absent. On timeout the returned error wraps ErrWaitTimeout.
	WaitFor(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string, timeout time.Duration, cond func(*unstructured.Unstructured) (bool, error)) (*unstructured.Unstructured, error)

	// ApplyManifests applies multi-document YAML using server-side apply.
	ApplyManifests(ctx context.Context, manifests []byte) error

	// ApplySecret creates or replaces a secret.
	ApplySecret(ctx context.Context, secret *corev1.Secret) error

	// WaitForDeployment polls until the deployment reports Available.
	WaitForDeployment(ctx context.Context, namespace, name string, timeout time.Duration) error

	// ServiceClusterIP returns the cluster IP of a service.
	ServiceClusterIP(ctx context.Context, namespace, name string) (string, error)

	// HasCRD reports whether the named CRD is registered.
	HasCRD(ctx context.Context, name string) (bool, error)

	// WaitForCRD polls until the named CRD is registered.
	WaitForCRD(ctx context.Context, name string, timeout time.Duration) error
}

// client implements Client using k8s.io/client-go.
type client struct {
	clientset kubernetes.Interface
	dynamic   dynamic.Interface
	mapper    meta.RESTMapper
}

// New creates a Client from the given kubeconfig path, falling back to the
// standard loading rules (KUBECONFIG, ~/.kube/config) when empty.
func New(kubeconfigPath string) (Client, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfigPath != "" {
		rules.ExplicitPath = kubeconfigPath
	}

	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	discoveryClient, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery client: %w", err)
	}

	groupResources, err := restmapper.GetAPIGroupResources(discoveryClient)
	if err != nil {
		return nil, fmt.Errorf("failed to get API group resources: %w", err)
	}

	return &client{
		clientset: clientset,
		dynamic:   dynamicClient,
		mapper:    restmapper.NewDiscoveryRESTMapper(groupResources),
	}, nil
}

// NewFromClients creates a Client from pre-configured clients.
// This is useful for testing with fakes.
func NewFromClients(clientset kubernetes.Interface, dynamicClient dynamic.Interface) Client {
	return &client{clientset: clientset, dynamic: dynamicClient}
}

// NewFromClientsWithMapper creates a Client with an explicit REST mapper,
// needed by tests that exercise manifest application.
func NewFromClientsWithMapper(clientset kubernetes.Interface, dynamicClient dynamic.Interface, mapper meta.RESTMapper) Client {
	return &client{clientset: clientset, dynamic: dynamicClient, mapper: mapper}
}

// IsNotFound reports whether the error indicates an absent resource.
func IsNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}

func (c *client) Get(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string) (*unstructured.Unstructured, error) {
	return c.resource(gvr, namespace).Get(ctx, name, metav1.GetOptions{})
}

func (c *client) List(ctx context.Context, gvr schema.GroupVersionResource, namespace string) ([]unstructured.Unstructured, error) {
	list, err := c.resource(gvr, namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", gvr.Resource, err)
	}
	return list.Items, nil
}

func (c *client) Apply(ctx context.Context, gvr schema.GroupVersionResource, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	if obj.GetName() == "" {
		return nil, fmt.Errorf("object of kind %s has no name set", obj.GetKind())
	}

	data, err := obj.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s %q: %w", obj.GetKind(), obj.GetName(), err)
	}

	applied, err := c.resource(gvr, obj.GetNamespace()).Patch(
		ctx,
		obj.GetName(),
		types.ApplyPatchType,
		data,
		metav1.PatchOptions{FieldManager: FieldManager},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to apply %s %q: %w", obj.GetKind(), obj.GetName(), err)
	}
	return applied, nil
}

func (c *client) Delete(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string) (bool, error) {
	err := c.resource(gvr, namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete %s %q: %w", gvr.Resource, name, err)
	}
	return true, nil
}

func (c *client) resource(gvr schema.GroupVersionResource, namespace string) dynamic.ResourceInterface {
	if namespace != "" {
		return c.dynamic.Resource(gvr).Namespace(namespace)
	}
	return c.dynamic.Resource(gvr)
}
