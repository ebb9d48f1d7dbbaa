package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/meatloaf/meatloaf-packager/internal/logger"
)

// LockFilename marks an output directory that a packager is writing to.
const LockFilename = ".meatloaf-packager.lock"

// lockAttempts covers one stale-lock removal followed by a retry.
const lockAttempts = 2

// ErrPackagerRunning indicates another packager owns the output directory.
var ErrPackagerRunning = errors.New("another packager is writing to the output directory")

// acquireLock creates the lock file in dir holding our PID. A lock whose owner is no
// longer in the process table is removed and taken over.
func acquireLock(ctx context.Context, dir string) (func(), error) {
	path := filepath.Join(dir, LockFilename)

	for range lockAttempts {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, writeErr := f.WriteString(strconv.Itoa(os.Getpid()))
			closeErr := f.Close()

			if err = errors.Join(writeErr, closeErr); err != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("write lock: %w", err)
			}

			return func() { _ = os.Remove(path) }, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock: %w", err)
		}

		if lockOwnerAlive(ctx, path) {
			return nil, fmt.Errorf("%w (remove %s if this is wrong)", ErrPackagerRunning, path)
		}

		logger.InfoKV(ctx, "Removing stale packager lock", "path", path)

		if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock: %w", err)
		}
	}

	return nil, ErrPackagerRunning
}

// lockOwnerAlive reports whether the PID recorded in the lock is still running.
// An unreadable PID means a crashed writer; an unanswerable process table means
// the lock is left alone.
func lockOwnerAlive(ctx context.Context, path string) bool {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		return false
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		logger.WarnKV(ctx, "Unable to check packager lock owner", "pid", pid, "error", err)
		return true
	}

	return process != nil
}
