// Package pid guards the instrument with a pid file so only one avactl
// process drives it at a time.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/avactl/internal/errors"
)

const (
	pidFile = "avactl.pid"
)

// Lock is a held pid file.
type Lock struct {
	path string
}

// Acquire writes the current process ID to the pid file in dir. It fails with
// ErrAlreadyRunning when the file names a live process; a stale file is
// replaced.
func Acquire(dir string) (*Lock, error) {
	errFactory := errors.New()
	path := filepath.Join(dir, pidFile)

	if bytes, err := os.ReadFile(path); err == nil {
		// PID file exists, check if the process is running
		if owner, err := strconv.Atoi(strings.TrimSpace(string(bytes))); err == nil && alive(owner) {
			return nil, errFactory.WithData(errors.ErrAlreadyRunning, owner)
		}
	} else if !os.IsNotExist(err) {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	return &Lock{path: path}, nil
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if pid == os.Getpid() {
		return true
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// Path returns the location of the pid file.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the pid file. Releasing twice is a no-op.
func (l *Lock) Release() error {
	errFactory := errors.New()

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrReleaseApp, err)
	}

	return nil
}
