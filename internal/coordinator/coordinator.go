// Package coordinator runs one hook invocation end to end.
//
// The flow is parse, fingerprint, suppress duplicates, take the execution
// guard, re-check history, record, log, dispatch, release. Reads of the
// shared history fail open; the guard fails closed.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/hookguard/internal/config"
	"github.com/ppiankov/hookguard/internal/envelope"
	"github.com/ppiankov/hookguard/internal/eventlog"
	"github.com/ppiankov/hookguard/internal/handler"
	"github.com/ppiankov/hookguard/internal/history"
	"github.com/ppiankov/hookguard/internal/hookerr"
	"github.com/ppiankov/hookguard/internal/identity"
	"github.com/ppiankov/hookguard/internal/lockfile"
)

// Error contexts reported through hookerr.
const (
	ContextEnvelope = "envelope"
	ContextEventLog = "eventlog"
	ContextDispatch = "dispatch"
	ContextPanic    = "panic"
)

// Appender writes accepted events to the shared log.
type Appender interface {
	Append(ctx context.Context, env *envelope.Envelope) error
}

// Dispatcher routes an accepted event to its handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, env *envelope.Envelope) (handler.Route, error)
}

// Options wires a Coordinator. Config, Log and Dispatcher are required.
type Options struct {
	Config     *config.Config
	History    *history.Suppressor
	Log        Appender
	Dispatcher Dispatcher
	Now        func() time.Time
	Logger     *slog.Logger
}

// Result describes how an invocation ended.
type Result struct {
	State       State
	Fingerprint identity.Fingerprint
	Route       handler.Route
}

// Coordinator serializes hook work across processes.
type Coordinator struct {
	cfg      *config.Config
	history  *history.Suppressor
	log      Appender
	dispatch Dispatcher
	now      func() time.Time
	logger   *slog.Logger
	closer   io.Closer
}

// New builds a Coordinator from already constructed parts.
func New(opts Options) (*Coordinator, error) {
	if opts.Config == nil {
		return nil, errors.New("coordinator: config is required")
	}
	if opts.Log == nil || opts.Dispatcher == nil {
		return nil, errors.New("coordinator: event log and dispatcher are required")
	}
	c := &Coordinator{
		cfg:      opts.Config,
		history:  opts.History,
		log:      opts.Log,
		dispatch: opts.Dispatcher,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// Open builds a Coordinator with the real history store, event log and
// handler table described by cfg. Handler output goes to out.
//
// A history store that cannot be opened is logged and left out; the
// coordinator then treats every event as new.
func Open(cfg *config.Config, out io.Writer, logger *slog.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	events, err := eventlog.New(eventlog.Options{
		Path:       cfg.LogPath(),
		LockPath:   cfg.LogLockPath(),
		Location:   loc,
		MaxBytes:   cfg.Log.MaxBytes,
		MaxBackups: cfg.Log.MaxBackups,
		Redact:     cfg.Log.Redact,
	})
	if err != nil {
		return nil, err
	}

	var store history.Store
	if s, err := history.Open(cfg.History.Backend, cfg.History.Path); err != nil {
		logger.Debug("history unavailable, suppression disabled", "backend", cfg.History.Backend, "path", cfg.History.Path, "error", err)
	} else {
		store = s
	}

	registry := handler.NewRegistry(
		handler.NewShellHandler(out),
		handler.NewFileHandler(out, handler.ExecRunner{}, cfg.Formatters),
	)

	c, err := New(Options{
		Config:     cfg,
		History:    history.NewSuppressor(store, cfg.History.Window, logger),
		Log:        events,
		Dispatcher: handler.NewDispatcher(registry, out),
		Logger:     logger,
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	c.closer = store
	return c, nil
}

// Close releases the history store opened by Open.
func (c *Coordinator) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// Run handles one event read from r.
//
// A nil error with a skipped state is the benign outcome of losing a race
// or repeating within the window. Errors are *hookerr.Error values.
func (c *Coordinator) Run(ctx context.Context, r io.Reader) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = hookerr.NewFatal(ContextPanic, fmt.Errorf("%v", p))
		}
	}()

	env, err := envelope.Parse(r)
	if err != nil {
		return res, hookerr.NewFatal(ContextEnvelope, err)
	}
	res.State = StateParsed

	fp := identity.Of(env)
	res.Fingerprint = fp
	res.State = StateIdentified
	logger := c.logger.With("fingerprint", fp.String(), "event", string(env.Kind), "tool", env.ToolName)

	if c.history.IsDuplicate(ctx, fp, c.now()) {
		logger.Debug("duplicate within window, skipping")
		res.State = StateSuppressed
		return res, nil
	}

	guard, ok := c.acquireGuard(fp, logger)
	if !ok {
		res.State = StateGuardDenied
		return res, nil
	}
	defer guard.Release()

	// A peer may have finished between the first check and the lock.
	now := c.now()
	if c.history.IsDuplicate(ctx, fp, now) {
		logger.Debug("recorded by a peer while acquiring guard, skipping")
		res.State = StateSuppressed
		return res, nil
	}
	res.State = StateProceeding
	c.history.Record(ctx, fp, now)

	if err := c.log.Append(ctx, env); err != nil {
		return res, hookerr.NewWarning(ContextEventLog, err)
	}
	res.State = StateLogged

	route, err := c.dispatch.Dispatch(ctx, env)
	res.Route = route
	res.State = StateDispatched
	if err != nil {
		var herr *hookerr.Error
		if errors.As(err, &herr) {
			return res, herr
		}
		return res, hookerr.NewFatal(ContextDispatch, err)
	}

	res.State = StateDone
	return res, nil
}

// acquireGuard takes the per-fingerprint lock without waiting. Any failure,
// contention or otherwise, counts as not granted.
func (c *Coordinator) acquireGuard(fp identity.Fingerprint, logger *slog.Logger) (*lockfile.Lock, bool) {
	path := c.cfg.GuardLockPath(fp.String())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Debug("guard directory unavailable, skipping", "path", path, "error", err)
		return nil, false
	}
	guard, err := lockfile.TryAcquire(path)
	if err != nil {
		if errors.Is(err, lockfile.ErrAlreadyLocked) {
			logger.Debug("guard held by another process, skipping", "path", path)
		} else {
			logger.Debug("guard acquire failed, skipping", "path", path, "error", err)
		}
		return nil, false
	}
	return guard, true
}
