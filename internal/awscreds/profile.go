// Package awscreds refreshes short-lived AWS credentials for the local
// cluster: it resolves a CLI profile, exports credentials (re-authenticating
// through SSO at most once), and writes them into the provider's secret and
// config resources.
package awscreds

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrNoProfile indicates no profile was configured and none could be
// prompted for.
var ErrNoProfile = errors.New("no AWS profile configured")

// Prompter asks the user for a profile name when nothing else yields one.
type Prompter interface {
	Prompt() (string, error)
}

// ResolveProfile picks the profile from the flag value, then AWS_PROFILE,
// then AWS_DEFAULT_PROFILE, then the prompter. Blank values are skipped.
func ResolveProfile(flagValue string, getenv func(string) string, prompter Prompter) (string, error) {
	for _, candidate := range []string{flagValue, getenv("AWS_PROFILE"), getenv("AWS_DEFAULT_PROFILE")} {
		if profile := strings.TrimSpace(candidate); profile != "" {
			return profile, nil
		}
	}

	if prompter == nil {
		return "", fmt.Errorf("%w: pass --profile or set AWS_PROFILE/AWS_DEFAULT_PROFILE", ErrNoProfile)
	}
	return prompter.Prompt()
}

// terminalPrompter collects the profile interactively.
type terminalPrompter struct{}

// NewPrompter creates the default interactive prompter.
func NewPrompter() Prompter {
	return terminalPrompter{}
}

func (terminalPrompter) Prompt() (string, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) || !isatty.IsTerminal(os.Stdout.Fd()) {
		return "", fmt.Errorf("%w: pass --profile or set AWS_PROFILE/AWS_DEFAULT_PROFILE", ErrNoProfile)
	}

	var profile string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("AWS profile").
			Description("CLI profile to export credentials from").
			Value(&profile),
	))
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("profile prompt failed: %w", err)
	}

	profile = strings.TrimSpace(profile)
	if profile == "" {
		return "", fmt.Errorf("%w: no profile entered", ErrNoProfile)
	}
	return profile, nil
}
