//go:build !unix

package daemon

import "errors"

// LockFile is created in the data directory by Lock.
const LockFile = "daemon.lock"

// ErrLocked means another process holds the data directory.
var ErrLocked = errors.New("data directory is locked by another process")

// Lock is a no-op on this platform.
func Lock(dir string) (release func() error, err error) {
	return func() error { return nil }, nil
}
