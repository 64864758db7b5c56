package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/ppiankov/hookguard/internal/identity"
)

// Suppressor is the soft duplicate check in front of the execution guard.
//
// It fails open: when the store cannot be read the event is treated as new.
// The execution guard fails closed; keep the two policies separate.
type Suppressor struct {
	store  Store
	window time.Duration
	log    *slog.Logger
}

// NewSuppressor wraps store. A non-positive window means DefaultWindow.
func NewSuppressor(store Store, window time.Duration, logger *slog.Logger) *Suppressor {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Suppressor{store: store, window: window, log: logger}
}

// Window returns the suppression window.
func (s *Suppressor) Window() time.Duration { return s.window }

// IsDuplicate reports whether fp was accepted less than Window before now.
func (s *Suppressor) IsDuplicate(ctx context.Context, fp identity.Fingerprint, now time.Time) bool {
	if s == nil || s.store == nil {
		return false
	}
	seen, err := s.store.Seen(ctx, fp, now, s.window)
	if err != nil {
		s.log.Debug("history unreadable, allowing execution", "fingerprint", fp, "error", err)
		return false
	}
	return seen
}

// Record notes that fp was accepted at the given time. Failures are logged
// and otherwise ignored.
func (s *Suppressor) Record(ctx context.Context, fp identity.Fingerprint, at time.Time) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Record(ctx, fp, at); err != nil {
		s.log.Debug("history append failed", "fingerprint", fp, "error", err)
	}
}
