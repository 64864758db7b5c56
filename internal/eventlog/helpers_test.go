package eventlog

import (
	"testing"

	"github.com/ppiankov/hookguard/internal/lockfile"
)

// lockAndWait holds the lock at path until release is closed.
func lockAndWait(t *testing.T, path string, holding, release chan struct{}) {
	t.Helper()
	l, err := lockfile.TryAcquire(path)
	if err != nil {
		t.Errorf("lock: %v", err)
		close(holding)
		return
	}
	close(holding)
	<-release
	l.Release()
}
