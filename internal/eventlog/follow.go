package eventlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Follow calls fn for every complete line appended to the log after offset,
// like tail -f. It watches the log's directory so it survives rotation and a
// log that does not exist yet. Blocks until ctx is cancelled.
func Follow(ctx context.Context, path string, offset int64, fn func(line string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("eventlog: create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("eventlog: create directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("eventlog: watch %q: %w", dir, err)
	}

	t := &follower{path: path, offset: offset, fn: fn}
	if err := t.drain(); err != nil {
		return err
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := t.drain(); err != nil {
					return err
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "file watcher error: %v\n", err)
		}
	}
}

type follower struct {
	path    string
	offset  int64
	partial string
	fn      func(string)
}

// drain reads everything past offset and emits complete lines.
func (t *follower) drain() error {
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("eventlog: open: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.Size() < t.offset {
		// Rotated or truncated: start over on the new file.
		t.offset = 0
		t.partial = ""
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}

	r := bufio.NewReader(f)
	for {
		chunk, err := r.ReadString('\n')
		t.offset += int64(len(chunk))
		if strings.HasSuffix(chunk, "\n") {
			t.fn(strings.TrimSuffix(t.partial+chunk, "\n"))
			t.partial = ""
		} else {
			t.partial += chunk
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
