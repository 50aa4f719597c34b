//go:build unix

package daemon

import (
	"errors"
	"testing"
)

func TestLock_Exclusive(t *testing.T) {
	dir := t.TempDir()

	release, err := Lock(dir)
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}

	if _, err := Lock(dir); !errors.Is(err, ErrLocked) {
		t.Errorf("second Lock() err = %v, want ErrLocked", err)
	}

	if err := release(); err != nil {
		t.Fatalf("release() failed: %v", err)
	}

	release, err = Lock(dir)
	if err != nil {
		t.Fatalf("Lock() after release failed: %v", err)
	}
	_ = release()
}
