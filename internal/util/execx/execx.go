// Package execx runs external collaborator commands (docker, colima, brew,
// aws, kubefwd) with consistent logging and error reporting.
package execx

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// Run executes a command with inherited stdio. It fails on non-zero exit.
func Run(ctx context.Context, program string, args ...string) error {
	log.Printf("Running: %s %s", program, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s exited with error: %w", program, err)
	}
	return nil
}

// RunIn executes a command with inherited stdio in the given directory.
func RunIn(ctx context.Context, dir, program string, args ...string) error {
	log.Printf("Running in %s: %s %s", dir, program, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s exited with error: %w", program, err)
	}
	return nil
}

// Output executes a command and captures stdout. Stderr is included in the
// error on failure.
func Output(ctx context.Context, program string, args ...string) (string, error) {
	log.Printf("Running: %s %s", program, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, program, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%s exited with error: %w: %s", program, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%s failed: %w", program, err)
	}
	return string(out), nil
}

// CombinedOutput executes a command and captures stdout and stderr together.
// Some tools (docker push among them) report results on either stream.
func CombinedOutput(ctx context.Context, program string, args ...string) (string, error) {
	log.Printf("Running: %s %s", program, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, program, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s exited with error: %w: %s", program, err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// RunWithInput executes a command piping input to its stdin.
func RunWithInput(ctx context.Context, input string, program string, args ...string) error {
	log.Printf("Running: %s %s", program, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Stdin = strings.NewReader(input)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s exited with error: %w", program, err)
	}
	return nil
}

// Exists reports whether a program is available in PATH.
func Exists(program string) bool {
	_, err := exec.LookPath(program)
	return err == nil
}
