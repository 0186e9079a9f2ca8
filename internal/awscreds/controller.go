package awscreds

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/hops-ops/hops/internal/k8s"
	"github.com/hops-ops/hops/internal/xpkg"
)

const (
	// DefaultProviderPackage is the provider family the credentials feed.
	DefaultProviderPackage = "xpkg.crossplane.io/crossplane-contrib/provider-family-aws:v2.4.0"

	// DefaultProviderName is the Provider resource name for the package.
	DefaultProviderName = "crossplane-contrib-provider-family-aws"

	// providerConfigCRD gates ProviderConfig creation on the provider's
	// CRDs being registered.
	providerConfigCRD = "providerconfigs.aws.m.upbound.io"

	defaultCRDTimeout = 5 * time.Minute
)

// providerConfigsGVR addresses the provider family's namespaced
// ProviderConfig resources.
var providerConfigsGVR = schema.GroupVersionResource{
	Group:    "aws.m.upbound.io",
	Version:  "v1beta1",
	Resource: "providerconfigs",
}

// Options selects what the refresh writes and where.
type Options struct {
	Profile            string
	Namespace          string
	SecretName         string
	ProviderConfigName string
	ProviderName       string
	ProviderPackage    string

	// RefreshOnly updates only the credentials secret, leaving the
	// Provider and ProviderConfig untouched.
	RefreshOnly bool
}

func (o Options) withDefaults() Options {
	if o.Namespace == "" {
		o.Namespace = "default"
	}
	if o.SecretName == "" {
		o.SecretName = "aws-creds"
	}
	if o.ProviderConfigName == "" {
		o.ProviderConfigName = "default"
	}
	if o.ProviderName == "" {
		o.ProviderName = DefaultProviderName
	}
	if o.ProviderPackage == "" {
		o.ProviderPackage = DefaultProviderPackage
	}
	return o
}

// Controller exports credentials and wires them into the cluster.
type Controller struct {
	client   k8s.Client
	exporter Exporter
	reauth   Reauthenticator

	// CRDTimeout bounds the wait for the provider's ProviderConfig CRD.
	CRDTimeout time.Duration
}

// New creates a Controller.
func New(client k8s.Client, exporter Exporter, reauth Reauthenticator) *Controller {
	return &Controller{client: client, exporter: exporter, reauth: reauth, CRDTimeout: defaultCRDTimeout}
}

// Configure exports credentials for the profile and applies the provider
// package, credentials secret, and ProviderConfig. In refresh-only mode
// only the secret is written.
func (c *Controller) Configure(ctx context.Context, opts Options) error {
	opts = opts.withDefaults()

	log.Printf("Exporting AWS credentials from profile %q...", opts.Profile)
	creds, err := c.export(ctx, opts.Profile)
	if err != nil {
		return err
	}

	if !opts.RefreshOnly {
		log.Printf("Applying provider package %q...", opts.ProviderPackage)
		if _, err := c.client.Apply(ctx, xpkg.ProvidersGVR, xpkg.ProviderManifest(opts.ProviderName, opts.ProviderPackage)); err != nil {
			return err
		}

		log.Printf("Waiting for CRD %s...", providerConfigCRD)
		if err := c.client.WaitForCRD(ctx, providerConfigCRD, c.CRDTimeout); err != nil {
			return err
		}
	}

	log.Printf("Applying secret %s/%s with exported credentials...", opts.Namespace, opts.SecretName)
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: opts.SecretName, Namespace: opts.Namespace},
		Type:       corev1.SecretTypeOpaque,
		StringData: map[string]string{"credentials": creds.INI()},
	}
	if err := c.client.ApplySecret(ctx, secret); err != nil {
		return err
	}

	if opts.RefreshOnly {
		log.Printf("Credentials refreshed for profile %q", opts.Profile)
		return nil
	}

	log.Printf("Applying ProviderConfig %s/%s...", opts.Namespace, opts.ProviderConfigName)
	if _, err := c.client.Apply(ctx, providerConfigsGVR, providerConfigManifest(opts)); err != nil {
		return err
	}

	log.Printf("AWS provider configured from profile %q (ProviderConfig: %s/%s)", opts.Profile, opts.Namespace, opts.ProviderConfigName)
	return nil
}

// export retrieves credentials, re-authenticating at most once when the
// session is expired. The bound is an explicit counter, not a loop
// condition, so it stays auditable.
func (c *Controller) export(ctx context.Context, profile string) (Credentials, error) {
	reauths := 0
	for {
		creds, err := c.exporter.Export(ctx, profile)
		if err == nil {
			return creds, nil
		}
		if !errors.Is(err, ErrSessionExpired) {
			return Credentials{}, err
		}
		if reauths >= 1 {
			return Credentials{}, fmt.Errorf("%w: session still expired after re-authentication: %v", ErrAuthFailed, err)
		}

		reauths++
		log.Printf("AWS SSO token missing or expired for profile %q, running `aws sso login`...", profile)
		if err := c.reauth.Login(ctx, profile); err != nil {
			return Credentials{}, fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
	}
}

func providerConfigManifest(opts Options) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "aws.m.upbound.io/v1beta1",
		"kind":       "ProviderConfig",
		"metadata": map[string]interface{}{
			"name":      opts.ProviderConfigName,
			"namespace": opts.Namespace,
		},
		"spec": map[string]interface{}{
			"credentials": map[string]interface{}{
				"source": "Secret",
				"secretRef": map[string]interface{}{
					"namespace": opts.Namespace,
					"name":      opts.SecretName,
					"key":       "credentials",
				},
			},
		},
	}}
}
