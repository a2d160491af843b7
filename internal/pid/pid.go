// Package pid keeps a single ventilatord instance per host.
package pid

import (
	"os"
	"strconv"
	"strings"

	"codeberg.org/mutker/ventilator/internal/errors"
	"golang.org/x/sys/unix"
)

// Write writes the current process ID to the PID file at path. It fails with
// ErrAlreadyRunning when the file names a live process other than this one.
func Write(path string) error {
	errFactory := errors.New()
	self := os.Getpid()

	if bytes, err := os.ReadFile(path); err == nil {
		other, err := strconv.Atoi(strings.TrimSpace(string(bytes)))
		if err == nil && other != self && isAlive(other) {
			return errFactory.WithData(errors.ErrAlreadyRunning, other)
		}
	} else if !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(self)), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file.
func Remove(path string) error {
	errFactory := errors.New()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)

	return err == nil || err == unix.EPERM
}
