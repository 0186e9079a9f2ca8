package helm

import (
	"context"
	"fmt"
	"os"
	"time"

	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/getter"
	"helm.sh/helm/v3/pkg/repo"
)

const installTimeout = 5 * time.Minute

// Client installs and upgrades Helm releases in a fixed namespace.
type Client struct {
	namespace    string
	actionConfig *action.Configuration
}

// NewClient creates a Helm client for the given kubeconfig path and
// namespace.
func NewClient(kubeconfigPath, namespace string) (*Client, error) {
	actionConfig := new(action.Configuration)
	restGetter := newRESTClientGetter(kubeconfigPath, namespace)

	// No-op logger keeps Helm's debug chatter out of the CLI output.
	if err := actionConfig.Init(restGetter, namespace, "secret", func(format string, v ...interface{}) {}); err != nil {
		return nil, fmt.Errorf("failed to initialize helm action config: %w", err)
	}

	return &Client{namespace: namespace, actionConfig: actionConfig}, nil
}

// InstallOrUpgrade installs a chart or upgrades it when the release already
// exists. It waits for the release's resources to become ready.
func (c *Client) InstallOrUpgrade(ctx context.Context, releaseName, repoURL, chartName, version string, values map[string]interface{}) error {
	histClient := action.NewHistory(c.actionConfig)
	histClient.Max = 1

	if _, err := histClient.Run(releaseName); err != nil {
		return c.install(ctx, releaseName, repoURL, chartName, version, values)
	}
	return c.upgrade(ctx, releaseName, repoURL, chartName, version, values)
}

func (c *Client) install(ctx context.Context, releaseName, repoURL, chartName, version string, values map[string]interface{}) error {
	installClient := action.NewInstall(c.actionConfig)
	installClient.ReleaseName = releaseName
	installClient.Namespace = c.namespace
	installClient.CreateNamespace = true
	installClient.Version = version
	installClient.Wait = true
	installClient.Timeout = installTimeout

	loaded, err := c.loadChart(repoURL, chartName, version)
	if err != nil {
		return err
	}

	if _, err := installClient.RunWithContext(ctx, loaded, values); err != nil {
		return fmt.Errorf("failed to install release %q: %w", releaseName, err)
	}
	return nil
}

func (c *Client) upgrade(ctx context.Context, releaseName, repoURL, chartName, version string, values map[string]interface{}) error {
	upgradeClient := action.NewUpgrade(c.actionConfig)
	upgradeClient.Namespace = c.namespace
	upgradeClient.Version = version
	upgradeClient.Wait = true
	upgradeClient.Timeout = installTimeout

	loaded, err := c.loadChart(repoURL, chartName, version)
	if err != nil {
		return err
	}

	if _, err := upgradeClient.RunWithContext(ctx, releaseName, loaded, values); err != nil {
		return fmt.Errorf("failed to upgrade release %q: %w", releaseName, err)
	}
	return nil
}

func (c *Client) loadChart(repoURL, chartName, version string) (*chart.Chart, error) {
	settings := cli.New()

	chartPath, err := repo.FindChartInRepoURL(repoURL, chartName, version, "", "", "", getter.All(settings))
	if err != nil {
		return nil, fmt.Errorf("failed to find chart %s in repo %s: %w", chartName, repoURL, err)
	}
	defer os.Remove(chartPath)

	return loader.Load(chartPath)
}

// Uninstall removes a release and waits for its resources to go away.
func (c *Client) Uninstall(releaseName string) error {
	uninstallClient := action.NewUninstall(c.actionConfig)
	uninstallClient.Wait = true
	uninstallClient.Timeout = installTimeout

	if _, err := uninstallClient.Run(releaseName); err != nil {
		return fmt.Errorf("failed to uninstall release %q: %w", releaseName, err)
	}
	return nil
}
