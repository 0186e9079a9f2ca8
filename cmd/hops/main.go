// Package main is the entry point for the hops CLI.
//
// hops is a command-line tool for developing Crossplane configuration
// packages against a disposable local cluster. It manages the VM-backed
// environment, builds and installs packages through an in-cluster
// registry, and keeps cloud credentials fresh.
//
// Commands: local (config, unconfig, aws, kubefwd, start, stop, install,
// reset, destroy, uninstall), version, completion.
//
// For detailed usage information, run:
//
//	hops --help
package main

import (
	"fmt"
	"os"

	"github.com/hops-ops/hops/cmd/hops/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
