package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hops-ops/hops/internal/awscreds"
	"github.com/hops-ops/hops/internal/k8s"
	"github.com/hops-ops/hops/internal/util/prerequisites"
)

func TestAWSUsesFlagProfile(t *testing.T) {
	saveAndRestoreFactories(t)

	configurer := &fakeConfigurer{}
	newCredentialConfigurer = func(k8s.Client) CredentialConfigurer { return configurer }
	newK8sClient = func(string) (k8s.Client, error) { return newFakeClusterClient(), nil }

	err := AWS(context.Background(), AWSOptions{Profile: "sandbox"})
	require.NoError(t, err)

	assert.Equal(t, "sandbox", configurer.opts.Profile)
	assert.False(t, configurer.opts.RefreshOnly)
}

func TestAWSFallsBackToEnvironment(t *testing.T) {
	saveAndRestoreFactories(t)

	getenv = func(key string) string {
		if key == "AWS_PROFILE" {
			return "staging"
		}
		return ""
	}

	configurer := &fakeConfigurer{}
	newCredentialConfigurer = func(k8s.Client) CredentialConfigurer { return configurer }
	newK8sClient = func(string) (k8s.Client, error) { return newFakeClusterClient(), nil }

	err := AWS(context.Background(), AWSOptions{RefreshOnly: true})
	require.NoError(t, err)

	assert.Equal(t, "staging", configurer.opts.Profile)
	assert.True(t, configurer.opts.RefreshOnly)
}

func TestAWSPromptsWhenUnconfigured(t *testing.T) {
	saveAndRestoreFactories(t)

	newProfilePrompter = func() awscreds.Prompter {
		return staticPrompter{profile: "prompted"}
	}

	configurer := &fakeConfigurer{}
	newCredentialConfigurer = func(k8s.Client) CredentialConfigurer { return configurer }
	newK8sClient = func(string) (k8s.Client, error) { return newFakeClusterClient(), nil }

	err := AWS(context.Background(), AWSOptions{})
	require.NoError(t, err)
	assert.Equal(t, "prompted", configurer.opts.Profile)
}

func TestAWSFailsWhenCLIToolMissing(t *testing.T) {
	saveAndRestoreFactories(t)

	checkTools = func([]prerequisites.Tool) error {
		return errors.New("missing required tools: aws")
	}

	called := false
	newCredentialConfigurer = func(k8s.Client) CredentialConfigurer {
		called = true
		return &fakeConfigurer{}
	}

	err := AWS(context.Background(), AWSOptions{Profile: "sandbox"})
	require.Error(t, err)
	assert.False(t, called)
}
