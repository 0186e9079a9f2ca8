package awscreds

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/ssocreds"
	"github.com/aws/smithy-go"
	"github.com/mattn/go-isatty"

	"github.com/hops-ops/hops/internal/util/execx"
)

var (
	// ErrSessionExpired indicates the profile's backing session token is
	// missing or expired; a single re-authentication may fix it.
	ErrSessionExpired = errors.New("AWS session token missing or expired")

	// ErrAuthFailed indicates re-authentication did not produce working
	// credentials. Terminal, never retried.
	ErrAuthFailed = errors.New("AWS re-authentication failed")
)

// Credentials is an exported short-lived credential set.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expires         time.Time
}

// INI renders the credentials in AWS shared-credentials file format, the
// payload the provider reads from its secret.
func (c Credentials) INI() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[default]\n")
	fmt.Fprintf(&b, "aws_access_key_id = %s\n", c.AccessKeyID)
	fmt.Fprintf(&b, "aws_secret_access_key = %s\n", c.SecretAccessKey)
	if strings.TrimSpace(c.SessionToken) != "" {
		fmt.Fprintf(&b, "aws_session_token = %s\n", c.SessionToken)
	}
	return b.String()
}

// Exporter resolves short-lived credentials for a profile.
type Exporter interface {
	Export(ctx context.Context, profile string) (Credentials, error)
}

// sdkExporter retrieves credentials through the AWS SDK's shared-config
// provider chain, which covers SSO, assumed roles, and static keys alike.
type sdkExporter struct{}

// NewExporter creates the default SDK-backed exporter.
func NewExporter() Exporter {
	return sdkExporter{}
}

func (sdkExporter) Export(ctx context.Context, profile string) (Credentials, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithSharedConfigProfile(profile))
	if err != nil {
		return Credentials{}, classifyExportError(profile, err)
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return Credentials{}, classifyExportError(profile, err)
	}

	if strings.TrimSpace(creds.AccessKeyID) == "" || strings.TrimSpace(creds.SecretAccessKey) == "" {
		return Credentials{}, fmt.Errorf("profile %q returned empty access key or secret key", profile)
	}

	return Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		Expires:         creds.Expires,
	}, nil
}

// classifyExportError maps an SDK failure onto the retryable
// session-expired case or a plain export failure.
func classifyExportError(profile string, err error) error {
	var invalidToken *ssocreds.InvalidTokenError
	if errors.As(err, &invalidToken) {
		return fmt.Errorf("%w for profile %q: %v", ErrSessionExpired, profile, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "UnauthorizedException" {
		return fmt.Errorf("%w for profile %q: %v", ErrSessionExpired, profile, err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"error loading sso token",
		"sso session associated with this profile has expired",
		"token has expired",
	} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w for profile %q: %v", ErrSessionExpired, profile, err)
		}
	}

	return fmt.Errorf("failed to export credentials for profile %q: %w", profile, err)
}

// Reauthenticator performs the interactive login that refreshes a
// profile's session.
type Reauthenticator interface {
	Login(ctx context.Context, profile string) error
}

// ssoReauthenticator shells out to `aws sso login`, which opens a browser
// and needs a terminal.
type ssoReauthenticator struct{}

// NewReauthenticator creates the default SSO login runner.
func NewReauthenticator() Reauthenticator {
	return ssoReauthenticator{}
}

func (ssoReauthenticator) Login(ctx context.Context, profile string) error {
	if !isatty.IsTerminal(os.Stdin.Fd()) || !isatty.IsTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("SSO login required but no interactive terminal detected, run `aws sso login --profile %s` first", profile)
	}
	return execx.Run(ctx, "aws", "sso", "login", "--profile", profile)
}
