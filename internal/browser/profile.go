// internal/browser/profile.go
package browser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

// singletonFiles are the single-instance markers Chrome leaves in a user-data directory.
// A crash leaves them behind and blocks the next launch on the same profile.
var singletonFiles = []string{"SingletonLock", "SingletonSocket", "SingletonCookie"}

// processAlive reports whether a local process with pid exists.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

// clearStaleLocks removes leftover singleton markers from dir unless the lock still
// points at a live process on this host, in which case ErrProfileBusy is returned.
func clearStaleLocks(dir string, alive func(pid int) bool, logger *zap.Logger) error {
	lockPath := filepath.Join(dir, "SingletonLock")
	if target, err := os.Readlink(lockPath); err == nil {
		host, pid := parseLockTarget(target)
		local, _ := os.Hostname()
		if pid > 0 && (host == "" || host == local) && alive(pid) {
			return fmt.Errorf("%w: %s (pid %d)", ErrProfileBusy, dir, pid)
		}
	}

	removed := 0
	for _, name := range singletonFiles {
		err := os.Remove(filepath.Join(dir, name))
		switch {
		case err == nil:
			removed++
		case errors.Is(err, os.ErrNotExist):
		default:
			return fmt.Errorf("failed to remove stale profile lock %s: %w", name, err)
		}
	}
	if removed > 0 {
		logger.Info("Removed stale browser profile locks.", zap.String("dir", dir), zap.Int("count", removed))
	}
	return nil
}

// parseLockTarget splits a SingletonLock target of the form "<hostname>-<pid>".
func parseLockTarget(target string) (string, int) {
	i := strings.LastIndex(target, "-")
	if i < 0 {
		pid, _ := strconv.Atoi(target)
		return "", pid
	}
	pid, err := strconv.Atoi(target[i+1:])
	if err != nil {
		return target, 0
	}
	return target[:i], pid
}
