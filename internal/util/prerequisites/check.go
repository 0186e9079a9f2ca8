// Package prerequisites checks that the external tools a command shells out
// to are present before any cluster state is touched.
package prerequisites

import (
	"fmt"
	"os/exec"
	"strings"
)

// Tool represents a client tool that may be required.
type Tool struct {
	// Name is the binary name to look for in PATH.
	Name string

	// Required indicates if this tool is mandatory.
	Required bool

	// Description explains what the tool is used for.
	Description string

	// InstallURL provides a URL for installation instructions.
	InstallURL string
}

// BuildTools returns the tools needed to build and publish packages from a
// local project.
func BuildTools() []Tool {
	return []Tool{
		{
			Name:        "docker",
			Required:    true,
			Description: "Required for loading and pushing package images",
			InstallURL:  "https://docs.docker.com/get-docker/",
		},
		{
			Name:        "up",
			Required:    true,
			Description: "Required for building packages from a project directory",
			InstallURL:  "https://docs.upbound.io/reference/cli/",
		},
	}
}

// VMTools returns the tools needed to manage the local cluster VM.
func VMTools() []Tool {
	return []Tool{
		{
			Name:        "colima",
			Required:    true,
			Description: "Required for running the local Kubernetes cluster",
			InstallURL:  "https://github.com/abiosoft/colima",
		},
	}
}

// ForwardTools returns the tools needed to run the service forwarder.
func ForwardTools() []Tool {
	return []Tool{
		{
			Name:        "kubefwd",
			Required:    true,
			Description: "Required for forwarding cluster services to the host",
			InstallURL:  "https://github.com/txn2/kubefwd",
		},
		{
			Name:        "sudo",
			Required:    true,
			Description: "kubefwd needs root to edit /etc/hosts and bind loopback addresses",
			InstallURL:  "",
		},
	}
}

// AWSTools returns the tools needed for credential refresh.
func AWSTools() []Tool {
	return []Tool{
		{
			Name:        "aws",
			Required:    true,
			Description: "Required for SSO login during credential refresh",
			InstallURL:  "https://docs.aws.amazon.com/cli/latest/userguide/getting-started-install.html",
		},
	}
}

// BrewTools returns the tools needed to install or remove host binaries.
func BrewTools() []Tool {
	return []Tool{
		{
			Name:        "brew",
			Required:    true,
			Description: "Required for installing colima and kubefwd",
			InstallURL:  "https://brew.sh/",
		},
	}
}

// CheckResult contains the result of checking a single tool.
type CheckResult struct {
	Tool    Tool
	Found   bool
	Path    string
	Version string
}

// CheckResults contains the results of checking multiple tools.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// HasErrors returns true if any required tools are missing.
func (r *CheckResults) HasErrors() bool {
	for _, tool := range r.Missing {
		if tool.Required {
			return true
		}
	}
	return false
}

// Error returns an error if any required tools are missing.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if !tool.Required {
			continue
		}
		if tool.InstallURL != "" {
			missing = append(missing, fmt.Sprintf("%s (%s)", tool.Name, tool.InstallURL))
		} else {
			missing = append(missing, tool.Name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}

// Check verifies that the specified tools are available.
func Check(tools []Tool) *CheckResults {
	results := &CheckResults{}

	for _, tool := range tools {
		result := CheckResult{Tool: tool}

		path, err := exec.LookPath(tool.Name)
		if err == nil {
			result.Found = true
			result.Path = path
			result.Version = getToolVersion(tool.Name)
		} else {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results
}

// getToolVersion attempts to get the version of a tool.
// Returns empty string if version cannot be determined.
func getToolVersion(name string) string {
	versionFlags := []string{"--version", "version", "-v"}

	for _, flag := range versionFlags {
		// #nosec G204 - name comes from trusted Tool definitions, not user input
		cmd := exec.Command(name, flag)
		output, err := cmd.Output()
		if err == nil {
			lines := strings.Split(string(output), "\n")
			if len(lines) > 0 {
				return strings.TrimSpace(lines[0])
			}
		}
	}

	return ""
}
