// Package eventlog appends one JSON line per accepted hook event to a log
// shared by every hook process.
//
// Each append holds a lock file next to the log for exactly one
// open-write-sync cycle, so concurrent processes never interleave partial
// lines. This lock is independent of the per-fingerprint execution guard.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/hookguard/internal/envelope"
	"github.com/ppiankov/hookguard/internal/lockfile"
	"github.com/ppiankov/hookguard/internal/redact"
)

const defaultMaxBackups = 3

// Options configures a Logger.
type Options struct {
	// Path is the log file, e.g. .claude/log/hooks.log.
	Path string
	// LockPath defaults to Path + ".lock".
	LockPath string
	// Location renders timestamps. Nil means time.Local.
	Location *time.Location
	// MaxBytes rotates the log once it grows past this size. 0 disables rotation.
	MaxBytes int64
	// MaxBackups keeps this many rotated files. <= 0 means 3.
	MaxBackups int
	// Redact scrubs credentials from every string field before writing.
	Redact bool
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Logger appends events to the shared log.
type Logger struct {
	path       string
	lockPath   string
	loc        *time.Location
	maxBytes   int64
	maxBackups int
	redact     bool
	now        func() time.Time
}

// New validates opts. It does not touch the filesystem.
func New(opts Options) (*Logger, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("eventlog: empty log path")
	}
	l := &Logger{
		path:       opts.Path,
		lockPath:   opts.LockPath,
		loc:        opts.Location,
		maxBytes:   opts.MaxBytes,
		maxBackups: opts.MaxBackups,
		redact:     opts.Redact,
		now:        opts.Now,
	}
	if l.lockPath == "" {
		l.lockPath = l.path + ".lock"
	}
	if l.loc == nil {
		l.loc = time.Local
	}
	if l.maxBackups <= 0 {
		l.maxBackups = defaultMaxBackups
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l, nil
}

// Path returns the log file location.
func (l *Logger) Path() string { return l.path }

// Append records env with the current local time. Fields keep the order
// and exact values they had on stdin.
func (l *Logger) Append(ctx context.Context, env *envelope.Envelope) error {
	members := env.Members()
	if l.redact {
		scrubbed, _ := redact.Fields(env.Fields())
		for i := range members {
			v, err := marshalValue(scrubbed[members[i].Key])
			if err != nil {
				return fmt.Errorf("eventlog: encode %s: %w", members[i].Key, err)
			}
			members[i].Value = v
		}
	}
	line, err := encodeMembers(l.timestamp(), members)
	if err != nil {
		return err
	}
	return l.appendLine(ctx, line)
}

// AppendFields records an arbitrary field set with the current local time.
// Keys after the timestamp are sorted.
func (l *Logger) AppendFields(ctx context.Context, fields map[string]any) error {
	if l.redact {
		fields, _ = redact.Fields(fields)
	}
	line, err := encodeEntry(l.timestamp(), fields)
	if err != nil {
		return err
	}
	return l.appendLine(ctx, line)
}

func (l *Logger) timestamp() string {
	return l.now().In(l.loc).Format(TimestampLayout)
}

// appendLine writes one encoded entry under the log lock.
func (l *Logger) appendLine(ctx context.Context, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("eventlog: create directory: %w", err)
	}

	lock, err := lockfile.Acquire(ctx, l.lockPath)
	if err != nil {
		return fmt.Errorf("eventlog: lock: %w", err)
	}
	defer lock.Release()

	if err := l.write(line); err != nil {
		return err
	}
	l.maybeRotateLocked()
	return nil
}

func (l *Logger) write(line []byte) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("eventlog: open: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("eventlog: write entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("eventlog: sync: %w", err)
	}
	return f.Close()
}

// maybeRotateLocked moves an oversized log aside. Caller holds the log lock.
// Rotation is best-effort: a failure leaves the active log in place.
func (l *Logger) maybeRotateLocked() {
	if l.maxBytes <= 0 {
		return
	}
	st, err := os.Stat(l.path)
	if err != nil || st.Size() <= l.maxBytes {
		return
	}

	prefix, ext := l.backupParts()
	// Two rotations in the same millisecond must not overwrite a backup.
	stamp := l.now().UnixMilli()
	dst := fmt.Sprintf("%s%d%s", prefix, stamp, ext)
	for {
		if _, err := os.Lstat(dst); errors.Is(err, fs.ErrNotExist) {
			break
		}
		stamp++
		dst = fmt.Sprintf("%s%d%s", prefix, stamp, ext)
	}
	if err := os.Rename(l.path, dst); err != nil {
		return
	}

	backups := l.Backups()
	if len(backups) <= l.maxBackups {
		return
	}
	// Backups is newest first.
	for _, old := range backups[l.maxBackups:] {
		_ = os.Remove(old)
	}
}

func (l *Logger) backupParts() (prefix, ext string) {
	ext = filepath.Ext(l.path)
	return strings.TrimSuffix(l.path, ext) + "-", ext
}

// Backups lists rotated log files, newest first.
func (l *Logger) Backups() []string {
	prefix, ext := l.backupParts()
	ents, err := os.ReadDir(filepath.Dir(l.path))
	if err != nil {
		return nil
	}
	base := filepath.Base(prefix)
	var out []string
	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		// <base>-<unix_ms><ext>
		if !strings.HasPrefix(name, base) || !strings.HasSuffix(name, ext) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, base), ext)
		if stamp == "" || strings.Trim(stamp, "0123456789") != "" {
			continue
		}
		out = append(out, filepath.Join(filepath.Dir(l.path), name))
	}
	// Equal-width UnixMilli names sort lexicographically in time order.
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}
