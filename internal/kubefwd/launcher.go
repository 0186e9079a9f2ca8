package kubefwd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	ps "github.com/mitchellh/go-ps"

	"github.com/hops-ops/hops/internal/util/execx"
)

// resyncInterval is how often kubefwd re-scans services for changes.
const resyncInterval = "30s"

// Launcher spawns and signals the forwarder process.
type Launcher interface {
	// Start launches the forwarder detached with its output appended to
	// logPath, returning the process id.
	Start(ctx context.Context, logPath string) (int, error)

	// Alive reports whether pid is a running forwarder process.
	Alive(pid int) bool

	// Terminate stops pid, escalating to a forced kill if it does not
	// exit within the bounded wait.
	Terminate(ctx context.Context, pid int) error
}

// execLauncher runs kubefwd under sudo, which it needs for hosts-file
// updates and privileged ports.
type execLauncher struct{}

// NewLauncher creates the default launcher.
func NewLauncher() Launcher {
	return execLauncher{}
}

func (execLauncher) Start(ctx context.Context, logPath string) (int, error) {
	if !execx.Exists("kubefwd") {
		return 0, fmt.Errorf("kubefwd is not installed or not in PATH (install it, e.g. `brew install kubefwd`)")
	}

	// Prime the sudo timestamp so the detached process can run with -n.
	if err := execx.Run(ctx, "sudo", "-v"); err != nil {
		return 0, err
	}

	logHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open forwarder log %s: %w", logPath, err)
	}
	defer logHandle.Close()

	cmd := exec.Command("sudo", "-n", "kubefwd", "services", "-A", "--resync-interval", resyncInterval)
	cmd.Stdin = nil
	cmd.Stdout = logHandle
	cmd.Stderr = logHandle

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start kubefwd: %w", err)
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("failed to detach kubefwd process: %w", err)
	}
	return pid, nil
}

func (execLauncher) Alive(pid int) bool {
	proc, err := ps.FindProcess(pid)
	if err != nil || proc == nil {
		return false
	}

	// The recorded pid belongs to the sudo wrapper; a reused pid running
	// something else must not be signaled.
	name := strings.ToLower(proc.Executable())
	return name == "sudo" || strings.Contains(name, "kubefwd")
}

func (l execLauncher) Terminate(ctx context.Context, pid int) error {
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		// Signaling a root-owned sudo wrapper needs elevation.
		if err := execx.Run(ctx, "sudo", "kill", fmt.Sprint(pid)); err != nil {
			return fmt.Errorf("failed to signal forwarder process %d: %w", pid, err)
		}
	}

	for i := 0; i < 20; i++ {
		if !l.Alive(pid) {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	if err := execx.Run(ctx, "sudo", "kill", "-9", fmt.Sprint(pid)); err != nil {
		return fmt.Errorf("forwarder process %d did not terminate: %w", pid, err)
	}
	if l.Alive(pid) {
		return fmt.Errorf("forwarder process %d did not terminate", pid)
	}
	return nil
}
