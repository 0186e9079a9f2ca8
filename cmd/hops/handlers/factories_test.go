package handlers

import (
	"context"
	"testing"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynfake "k8s.io/client-go/dynamic/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"

	"github.com/hops-ops/hops/internal/awscreds"
	"github.com/hops-ops/hops/internal/colima"
	"github.com/hops-ops/hops/internal/k8s"
	"github.com/hops-ops/hops/internal/kubefwd"
	"github.com/hops-ops/hops/internal/prune"
	"github.com/hops-ops/hops/internal/reload"
	"github.com/hops-ops/hops/internal/resolver"
	"github.com/hops-ops/hops/internal/util/prerequisites"
	"github.com/hops-ops/hops/internal/xpkg"
)

// saveAndRestoreFactories saves the current factory functions and registers
// a cleanup that restores them.
func saveAndRestoreFactories(t *testing.T) {
	t.Helper()
	origNewK8sClient := newK8sClient
	origNewResolver := newResolver
	origNewReloader := newReloader
	origNewPruner := newPruner
	origNewPublisher := newPublisher
	origNewRegistryService := newRegistryService
	origNewSupervisor := newSupervisor
	origNewCredentialConfigurer := newCredentialConfigurer
	origNewProfilePrompter := newProfilePrompter
	origNewLifecycle := newLifecycle
	origCheckTools := checkTools
	origGetenv := getenv

	t.Cleanup(func() {
		newK8sClient = origNewK8sClient
		newResolver = origNewResolver
		newReloader = origNewReloader
		newPruner = origNewPruner
		newPublisher = origNewPublisher
		newRegistryService = origNewRegistryService
		newSupervisor = origNewSupervisor
		newCredentialConfigurer = origNewCredentialConfigurer
		newProfilePrompter = origNewProfilePrompter
		newLifecycle = origNewLifecycle
		checkTools = origCheckTools
		getenv = origGetenv
	})

	// Most tests run without the real host tools installed.
	checkTools = func([]prerequisites.Tool) error { return nil }
	getenv = func(string) string { return "" }
}

// newFakeClusterClient builds a fake-backed client with the given objects
// pre-created. Pre-created because the fake dynamic client only patches what
// exists.
func newFakeClusterClient(objs ...runtime.Object) k8s.Client {
	scheme := runtime.NewScheme()
	dyn := dynfake.NewSimpleDynamicClientWithCustomListKinds(scheme, map[schema.GroupVersionResource]string{
		xpkg.ConfigurationsGVR: "ConfigurationList",
	}, objs...)
	return k8s.NewFromClients(k8sfake.NewSimpleClientset(), dyn)
}

func configurationStub(name string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "pkg.crossplane.io/v1",
		"kind":       "Configuration",
		"metadata":   map[string]interface{}{"name": name},
	}}
}

type fakeResolver struct {
	result resolver.Result
	err    error

	req   resolver.Request
	calls int
}

func (f *fakeResolver) Resolve(_ context.Context, req resolver.Request) (resolver.Result, error) {
	f.calls++
	f.req = req
	return f.result, f.err
}

type fakeReloader struct {
	result reload.Result
	err    error

	names    []string
	images   []string
	siblings [][]xpkg.Ref
}

func (f *fakeReloader) Reload(_ context.Context, name string, configuration xpkg.Ref, siblings []xpkg.Ref) (reload.Result, error) {
	f.names = append(f.names, name)
	f.images = append(f.images, configuration.Image)
	f.siblings = append(f.siblings, siblings)
	return f.result, f.err
}

type fakePruneEngine struct {
	result prune.Result
	err    error

	targets []prune.Target
}

func (f *fakePruneEngine) Prune(_ context.Context, target prune.Target) (prune.Result, error) {
	f.targets = append(f.targets, target)
	return f.result, f.err
}

type fakePackagePublisher struct {
	pullRefs []string
	err      error

	artifacts []string
}

func (f *fakePackagePublisher) Publish(_ context.Context, artifacts []string) ([]string, error) {
	f.artifacts = artifacts
	return f.pullRefs, f.err
}

type fakeRegistryService struct {
	ensureErr error
	syncErr   error

	ensured int
	synced  int
}

func (f *fakeRegistryService) Ensure(context.Context) error {
	f.ensured++
	return f.ensureErr
}

func (f *fakeRegistryService) SyncHostsEntry(context.Context) error {
	f.synced++
	return f.syncErr
}

type fakeForwarder struct {
	state  kubefwd.State
	record *kubefwd.Record
	err    error

	starts    int
	stops     int
	refreshes int
}

func (f *fakeForwarder) Start(context.Context) error   { f.starts++; return f.err }
func (f *fakeForwarder) Stop(context.Context) error    { f.stops++; return f.err }
func (f *fakeForwarder) Refresh(context.Context) error { f.refreshes++; return f.err }
func (f *fakeForwarder) Status() (kubefwd.State, *kubefwd.Record, error) {
	return f.state, f.record, f.err
}

type fakeConfigurer struct {
	err  error
	opts awscreds.Options
}

func (f *fakeConfigurer) Configure(_ context.Context, opts awscreds.Options) error {
	f.opts = opts
	return f.err
}

type staticPrompter struct {
	profile string
	err     error
}

func (p staticPrompter) Prompt() (string, error) { return p.profile, p.err }

type fakeEnvironment struct {
	err error

	startOpts  []colima.StartOptions
	stops      int
	destroys   int
	resets     int
	installs   int
	uninstalls int
}

func (f *fakeEnvironment) Start(_ context.Context, opts colima.StartOptions) error {
	f.startOpts = append(f.startOpts, opts)
	return f.err
}
func (f *fakeEnvironment) Stop(context.Context) error      { f.stops++; return f.err }
func (f *fakeEnvironment) Destroy(context.Context) error   { f.destroys++; return f.err }
func (f *fakeEnvironment) Reset(context.Context) error     { f.resets++; return f.err }
func (f *fakeEnvironment) Install(context.Context) error   { f.installs++; return f.err }
func (f *fakeEnvironment) Uninstall(context.Context) error { f.uninstalls++; return f.err }
