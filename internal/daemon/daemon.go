package daemon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"cmdq/internal/client"
)

const (
	startupAttempts = 10
	startupBaseWait = 200 * time.Millisecond
	startupMaxWait  = 2 * time.Second
)

// EnsureServer health-checks the daemon and spawns cmdqd detached when it is
// unreachable, then polls the health endpoint with capped backoff until the
// daemon answers or the attempt budget runs out.
func EnsureServer(ctx context.Context, c *client.Client, stateDir string) error {
	if c.Health(ctx) {
		return nil
	}
	if err := spawn(stateDir); err != nil {
		return fmt.Errorf("start cmdqd: %w", err)
	}

	wait := startupBaseWait
	for i := 0; i < startupAttempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if c.Health(ctx) {
			return nil
		}
		wait *= 2
		if wait > startupMaxWait {
			wait = startupMaxWait
		}
	}
	return fmt.Errorf("cmdqd did not become healthy after %d attempts", startupAttempts)
}

// spawn launches cmdqd as a detached background process with its output
// redirected under the state directory.
func spawn(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("ensure state dir: %w", err)
	}
	outFile, err := os.OpenFile(filepath.Join(stateDir, "cmdqd.out"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open daemon out file: %w", err)
	}
	defer outFile.Close()
	errFile, err := os.OpenFile(filepath.Join(stateDir, "cmdqd.err"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open daemon err file: %w", err)
	}
	defer errFile.Close()

	cmd := exec.Command("cmdqd", "-state-dir", stateDir)
	cmd.Stdout = outFile
	cmd.Stderr = errFile
	cmd.SysProcAttr = detachedProcAttr()
	if err := cmd.Start(); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(stateDir, "cmdqd.pid"), []byte(fmt.Sprintf("%d\n", cmd.Process.Pid)), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	// The daemon outlives the CLI process; don't wait on it.
	return cmd.Process.Release()
}
