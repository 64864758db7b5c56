package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/hookguard/internal/envelope"
	"github.com/ppiankov/hookguard/internal/identity"
)

var (
	fpA = identity.Compute("sess", envelope.PostToolUse, "Write")
	fpB = identity.Compute("sess", envelope.PreToolUse, "Bash")
	t0  = time.Unix(1_750_000_000, 0)
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fs, err := Open(BackendFile, filepath.Join(dir, "log", "execution_history.log"))
	require.NoError(t, err)
	db, err := Open(BackendSQLite, filepath.Join(dir, "db", "execution_history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]Store{BackendFile: fs, BackendSQLite: db}
}

func TestDuplicateWindow(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := NewSuppressor(store, DefaultWindow, nil)

			assert.False(t, s.IsDuplicate(ctx, fpA, t0), "empty history")
			s.Record(ctx, fpA, t0)

			assert.True(t, s.IsDuplicate(ctx, fpA, t0.Add(4900*time.Millisecond)))
			assert.False(t, s.IsDuplicate(ctx, fpA, t0.Add(5100*time.Millisecond)))
			assert.False(t, s.IsDuplicate(ctx, fpB, t0.Add(time.Second)), "other fingerprint")
		})
	}
}

func TestRecentAndPrune(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Record(ctx, fpA, t0))
			require.NoError(t, store.Record(ctx, fpB, t0.Add(time.Minute)))
			require.NoError(t, store.Record(ctx, fpA, t0.Add(2*time.Minute)))

			recent, err := store.Recent(ctx, 2)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, fpA, recent[0].Fingerprint)
			assert.WithinDuration(t, t0.Add(2*time.Minute), recent[0].At, time.Millisecond)
			assert.Equal(t, fpB, recent[1].Fingerprint)

			n, err := store.Prune(ctx, t0.Add(90*time.Second))
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			all, err := store.Recent(ctx, 0)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, fpA, all[0].Fingerprint)
		})
	}
}

func TestFileStoreSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "execution_history.log")
	content := "garbage\n" +
		"\n" +
		"nothex0123456789:1750000000.0\n" +
		string(fpA) + ":not-a-number\n" +
		string(fpA) + ":NaN\n" +
		string(fpA) + ":1750000000.000000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	seen, err := store.Seen(context.Background(), fpA, t0.Add(time.Second), DefaultWindow)
	require.NoError(t, err)
	assert.True(t, seen)

	recent, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestFileStoreSurvivesOverlongLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "execution_history.log")
	garbage := strings.Repeat("x", 70<<10) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(garbage), 0o600))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	s := NewSuppressor(store, DefaultWindow, nil)

	ctx := context.Background()
	s.Record(ctx, fpA, t0)
	assert.True(t, s.IsDuplicate(ctx, fpA, t0.Add(time.Second)))

	recent, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, fpA, recent[0].Fingerprint)
}

func TestFileStoreReadsLegacyLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "execution_history.log")
	// Records written with Python's time.time() repr.
	require.NoError(t, os.WriteFile(path, []byte(string(fpA)+":1750000000.1234567\n"), 0o600))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	seen, err := store.Seen(context.Background(), fpA, t0.Add(2*time.Second), DefaultWindow)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestFailOpenWhenHistoryMissing(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "missing", "history.log"))
	require.NoError(t, err)
	s := NewSuppressor(store, 0, nil)
	assert.False(t, s.IsDuplicate(context.Background(), fpA, t0))
	assert.Equal(t, DefaultWindow, s.Window())
}

func TestFailOpenWhenHistoryUnreadable(t *testing.T) {
	// A directory in place of the file: open works, reading fails.
	path := filepath.Join(t.TempDir(), "history.log")
	require.NoError(t, os.Mkdir(path, 0o700))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = store.Seen(context.Background(), fpA, t0, DefaultWindow)
	require.Error(t, err)

	s := NewSuppressor(store, DefaultWindow, nil)
	assert.False(t, s.IsDuplicate(context.Background(), fpA, t0))

	// Recording into it fails too, silently.
	s.Record(context.Background(), fpA, t0)
}

type brokenStore struct{ Store }

func (brokenStore) Seen(context.Context, identity.Fingerprint, time.Time, time.Duration) (bool, error) {
	return true, errors.New("disk on fire")
}

func TestFailOpenIgnoresStoreAnswerOnError(t *testing.T) {
	s := NewSuppressor(brokenStore{}, DefaultWindow, nil)
	assert.False(t, s.IsDuplicate(context.Background(), fpA, t0))
}

func TestNilSuppressor(t *testing.T) {
	var s *Suppressor
	assert.False(t, s.IsDuplicate(context.Background(), fpA, t0))
	s.Record(context.Background(), fpA, t0)
}

func TestFileStoreConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "execution_history.log")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Record(context.Background(), fpA, t0.Add(time.Duration(i)*time.Millisecond))
		}(i)
	}
	wg.Wait()

	recent, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, recent, n)
}

func TestPruneMissingFile(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "history.log"))
	require.NoError(t, err)
	n, err := store.Prune(context.Background(), t0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("redis", filepath.Join(t.TempDir(), "x"))
	assert.Error(t, err)

	_, err = Open(BackendFile, "  ")
	assert.Error(t, err)
}
