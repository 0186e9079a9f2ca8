package k8s

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/wait"
)

// ErrWaitTimeout indicates a condition wait exceeded its bound.
var ErrWaitTimeout = errors.New("timed out waiting for condition")

// pollInterval is the condition re-check interval for all waits.
const pollInterval = 2 * time.Second

// crdGVR addresses CustomResourceDefinitions for CRD existence checks.
var crdGVR = schema.GroupVersionResource{
	Group:    "apiextensions.k8s.io",
	Version:  "v1",
	Resource: "customresourcedefinitions",
}

// WaitFor polls the named resource until cond is satisfied or the timeout
// elapses. The condition receives nil while the resource is absent, so
// callers can wait for deletion as well as for readiness.
func (c *client) WaitFor(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string, timeout time.Duration, cond func(*unstructured.Unstructured) (bool, error)) (*unstructured.Unstructured, error) {
	var last *unstructured.Unstructured

	err := wait.PollUntilContextTimeout(ctx, pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		obj, err := c.Get(ctx, gvr, namespace, name)
		if err != nil {
			if !IsNotFound(err) {
				// Transient API errors should not abort the wait.
				return false, nil
			}
			obj = nil
		}

		last = obj
		return cond(obj)
	})
	if err != nil {
		if wait.Interrupted(err) {
			return last, fmt.Errorf("%w: %s %q after %s", ErrWaitTimeout, gvr.Resource, name, timeout)
		}
		return last, err
	}

	return last, nil
}

// HasCRD reports whether the named CRD is registered.
func (c *client) HasCRD(ctx context.Context, name string) (bool, error) {
	_, err := c.Get(ctx, crdGVR, "", name)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check CRD %q: %w", name, err)
	}
	return true, nil
}

// WaitForCRD polls until the named CRD is registered, so resources of a
// freshly installed provider can be applied.
func (c *client) WaitForCRD(ctx context.Context, name string, timeout time.Duration) error {
	_, err := c.WaitFor(ctx, crdGVR, "", name, timeout, func(obj *unstructured.Unstructured) (bool, error) {
		return obj != nil, nil
	})
	return err
}
