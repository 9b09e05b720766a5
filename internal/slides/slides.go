// Package slides invokes an external presentation renderer over a small
// command protocol: the deck path and page number go in as arguments, a
// self-contained HTML fragment comes back on stdout.
package slides

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Renderer shells out to a configured command for each requested page.
type Renderer struct {
	// Command is the renderer invocation; extra arguments may follow the
	// executable, separated by whitespace.
	Command string
}

// New returns a Renderer for the given command line, or nil when no command
// is configured so callers can treat the feature as absent.
func New(command string) *Renderer {
	if strings.TrimSpace(command) == "" {
		return nil
	}
	return &Renderer{Command: command}
}

// RenderFragment renders a single page of the deck at absPath and returns
// the HTML fragment the renderer produced.
func (r *Renderer) RenderFragment(ctx context.Context, absPath string, page int) (string, error) {
	parts := strings.Fields(r.Command)
	if len(parts) == 0 {
		return "", fmt.Errorf("no slide renderer command configured")
	}

	args := append(parts[1:], "--page", strconv.Itoa(page), absPath)
	cmd := exec.CommandContext(ctx, parts[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("slide renderer failed: %w: %s", err, msg)
		}
		return "", fmt.Errorf("slide renderer failed: %w", err)
	}
	return stdout.String(), nil
}
