// Package shell asks the desktop environment to open URLs.
package shell

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"codex-account-manager/internal/ports"
)

type Opener struct{}

var _ ports.URLOpener = Opener{}

// Open launches the platform browser without waiting for it to exit.
func (Opener) Open(_ context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()

	return nil
}
