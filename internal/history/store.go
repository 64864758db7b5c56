// Package history keeps the shared, cross-process record of accepted
// executions and answers "was this fingerprint accepted moments ago?".
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/hookguard/internal/identity"
)

// DefaultWindow is how long an accepted fingerprint suppresses repeats.
const DefaultWindow = 5 * time.Second

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Record is one accepted execution.
type Record struct {
	Fingerprint identity.Fingerprint `json:"fingerprint"`
	At          time.Time            `json:"at"`
}

// Store is a shared history of accepted executions.
// Implementations must tolerate concurrent use from several processes.
type Store interface {
	// Seen reports whether fp was recorded at some t with now-t < window.
	Seen(ctx context.Context, fp identity.Fingerprint, now time.Time, window time.Duration) (bool, error)
	// Record appends an accepted execution.
	Record(ctx context.Context, fp identity.Fingerprint, at time.Time) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	// Prune drops records older than before and returns how many went away.
	Prune(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// Open returns the store for backend at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(path)
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("history: unknown backend %q", backend)
	}
}

// within reports whether at falls inside the window ending at now.
// Records stamped after now (clock skew between processes) count as recent.
func within(at, now time.Time, window time.Duration) bool {
	return now.Sub(at) < window
}
