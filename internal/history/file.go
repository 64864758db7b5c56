package history

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/hookguard/internal/identity"
	"github.com/ppiankov/hookguard/internal/lockfile"
)

// FileStore is an append-only text file of "<fingerprint>:<unix seconds>"
// lines. Reads take no lock; staleness is tolerated. Each append is a single
// O_APPEND write of one short line and is not locked against other appenders.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. The file is created lazily.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history: empty path")
	}
	return &FileStore{path: path}, nil
}

// Path returns the history file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Seen(ctx context.Context, fp identity.Fingerprint, now time.Time, window time.Duration) (bool, error) {
	found := false
	err := s.scan(func(r Record) bool {
		if r.Fingerprint == fp && within(r.At, now, window) {
			found = true
			return false
		}
		return true
	})
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return found, err
}

func (s *FileStore) Record(ctx context.Context, fp identity.Fingerprint, at time.Time) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("history: create directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("history: open: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(Record{Fingerprint: fp, At: at})); err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

func (s *FileStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	var out []Record
	err := s.scan(func(r Record) bool {
		out = append(out, r)
		return true
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Prune rewrites the file without records older than before. Compactions are
// serialized by a lock next to the file; appends racing a compaction may be
// lost, which only weakens the soft duplicate check.
func (s *FileStore) Prune(ctx context.Context, before time.Time) (int, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return 0, fmt.Errorf("history: create directory: %w", err)
	}
	l, err := lockfile.Acquire(ctx, s.path+".lock")
	if err != nil {
		return 0, fmt.Errorf("history: lock for prune: %w", err)
	}
	defer l.Release()

	var kept []Record
	dropped := 0
	err = s.scan(func(r Record) bool {
		if r.At.Before(before) {
			dropped++
		} else {
			kept = append(kept, r)
		}
		return true
	})
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var b strings.Builder
	for _, r := range kept {
		b.WriteString(formatLine(r))
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o600); err != nil {
		return 0, fmt.Errorf("history: write compacted file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("history: replace file: %w", err)
	}
	return dropped, nil
}

func (s *FileStore) Close() error { return nil }

// maxLineBytes bounds one history line. Well-formed lines are far shorter;
// anything longer is garbage and is skipped without ending the scan.
const maxLineBytes = 4 << 10

// scan calls fn for every well-formed line until fn returns false.
// Malformed and overlong lines are skipped.
func (s *FileStore) scan(fn func(Record) bool) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var line []byte
	overlong := false
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !overlong {
			line = append(line, chunk...)
			overlong = len(line) > maxLineBytes
		}
		if isPrefix {
			continue
		}
		keep := !overlong
		overlong = false
		text := string(line)
		line = line[:0]
		if !keep {
			continue
		}
		r, ok := parseLine(text)
		if !ok {
			continue
		}
		if !fn(r) {
			return nil
		}
	}
}

func formatLine(r Record) string {
	secs := float64(r.At.UnixNano()) / 1e9
	return string(r.Fingerprint) + ":" + strconv.FormatFloat(secs, 'f', 6, 64) + "\n"
}

func parseLine(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}, false
	}
	fpStr, tsStr, ok := strings.Cut(line, ":")
	if !ok {
		return Record{}, false
	}
	fp, err := identity.Parse(fpStr)
	if err != nil {
		return Record{}, false
	}
	secs, err := strconv.ParseFloat(tsStr, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return Record{}, false
	}
	return Record{Fingerprint: fp, At: time.Unix(0, int64(secs*1e9))}, true
}
