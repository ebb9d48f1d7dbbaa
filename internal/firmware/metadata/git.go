package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultGitTimeout bounds each git invocation.
const DefaultGitTimeout = 10 * time.Second

var errEmptyOutput = errors.New("empty output")

// VCS answers the two questions the manifest asks of version control.
type VCS interface {
	// CommitMessage returns the message of the latest commit.
	CommitMessage(ctx context.Context) (string, error)
	// ShortHash returns the abbreviated hash of HEAD.
	ShortHash(ctx context.Context) (string, error)
}

// Git runs the git binary in Dir.
type Git struct {
	// Dir is the working tree; empty means the current directory.
	Dir string
	// Binary defaults to "git".
	Binary string
	// Timeout defaults to DefaultGitTimeout.
	Timeout time.Duration
}

// CommitMessage runs `git log -1 --pretty=%B`.
func (g *Git) CommitMessage(ctx context.Context) (string, error) {
	return g.output(ctx, "log", "-1", "--pretty=%B")
}

// ShortHash runs `git rev-parse --short HEAD`.
func (g *Git) ShortHash(ctx context.Context) (string, error) {
	out, err := g.output(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

func (g *Git) output(ctx context.Context, args ...string) (string, error) {
	binary := g.Binary
	if binary == "" {
		binary = "git"
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultGitTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer

	//nolint:gosec // Arguments are fixed by the callers above.
	cmd := exec.CommandContext(cmdCtx, binary, args...)
	cmd.Dir = g.Dir
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}

		return "", fmt.Errorf("git %s: %w", args[0], err)
	}

	if strings.TrimSpace(string(out)) == "" {
		return "", fmt.Errorf("git %s: %w", args[0], errEmptyOutput)
	}

	return string(out), nil
}
