package eventlog

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/hookguard/internal/envelope"
)

const (
	helperPathEnv  = "HOOKGUARD_EVENTLOG_HELPER_PATH"
	helperCountEnv = "HOOKGUARD_EVENTLOG_HELPER_COUNT"
)

var jst = time.FixedZone("JST", 9*60*60)

func newTestLogger(t *testing.T, opts Options) *Logger {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "log", "hooks.log")
	}
	l, err := New(opts)
	require.NoError(t, err)
	return l
}

func testEnvelope(t *testing.T, body string) *envelope.Envelope {
	t.Helper()
	env, err := envelope.Decode([]byte(body))
	require.NoError(t, err)
	return env
}

func TestEncodeEntryPutsTimestampFirst(t *testing.T) {
	line, err := encodeEntry("2025-01-15 10:30:00", map[string]any{
		"tool_name":       "Write",
		"hook_event_name": "PostToolUse",
		"timestamp":       "from the agent",
	})
	require.NoError(t, err)
	assert.Equal(t,
		`{"timestamp":"2025-01-15 10:30:00","hook_event_name":"PostToolUse","tool_name":"Write"}`+"\n",
		string(line))

	line, err = encodeEntry("2025-01-15 10:30:00", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"timestamp":"2025-01-15 10:30:00"}`+"\n", string(line))
}

func TestEncodeEntryKeepsTextVerbatim(t *testing.T) {
	line, err := encodeEntry("ts", map[string]any{"message": "通知 <b>&</b>\nnext"})
	require.NoError(t, err)
	assert.Contains(t, string(line), `"message":"通知 <b>&</b>\nnext"`)
	assert.Equal(t, 1, strings.Count(string(line), "\n"))
}

func TestAppendWritesOneLinePerEvent(t *testing.T) {
	fixed := time.Date(2025, 1, 15, 1, 30, 0, 0, time.UTC)
	l := newTestLogger(t, Options{Location: jst, Now: func() time.Time { return fixed }})

	env := testEnvelope(t, `{"session_id":"s1","hook_event_name":"PostToolUse","tool_name":"Write","tool_input":{"file_path":"x.py"}}`)
	require.NoError(t, l.Append(context.Background(), env))
	require.NoError(t, l.Append(context.Background(), env))

	lines, err := Tail(l.Path(), 0)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	e, err := ParseEntry([]byte(lines[0]))
	require.NoError(t, err)
	assert.Equal(t, "2025-01-15 10:30:00", e.Timestamp())
	assert.Equal(t, "PostToolUse", e.Kind())
	assert.Equal(t, "Write", e.Tool())
	assert.Equal(t, "s1", e.SessionID())
	assert.Equal(t, map[string]any{"file_path": "x.py"}, e["tool_input"])

	assert.NoFileExists(t, l.Path()+".lock", "log lock is released after each write")
}

func TestAppendRedacts(t *testing.T) {
	body := `{"session_id":"s1","hook_event_name":"PreToolUse","tool_name":"Bash","tool_input":{"command":"export TOKEN=abc; curl -u x:password=hunter2"}}`

	plain := newTestLogger(t, Options{})
	require.NoError(t, plain.Append(context.Background(), testEnvelope(t, body)))
	lines, err := Tail(plain.Path(), 0)
	require.NoError(t, err)
	assert.Contains(t, lines[0], "hunter2")

	scrubbed := newTestLogger(t, Options{Redact: true})
	require.NoError(t, scrubbed.Append(context.Background(), testEnvelope(t, body)))
	lines, err = Tail(scrubbed.Path(), 0)
	require.NoError(t, err)
	assert.NotContains(t, lines[0], "hunter2")
	assert.Contains(t, lines[0], "[REDACTED]")

	e, err := ParseEntry([]byte(lines[0]))
	require.NoError(t, err)
	assert.Equal(t, "s1", e.SessionID())
}

func TestAppendKeepsFieldOrderAndNumbers(t *testing.T) {
	fixed := time.Date(2025, 1, 15, 1, 30, 0, 0, time.UTC)
	l := newTestLogger(t, Options{Location: time.UTC, Now: func() time.Time { return fixed }})

	body := `{"tool_name":"Bash", "request_id":12345678901234567890,"n":9007199254740993,` +
		`"ratio":1.50,"hook_event_name":"PreToolUse","tool_input":{"z":1,"a":"<x>"}}`
	require.NoError(t, l.Append(context.Background(), testEnvelope(t, body)))

	lines, err := Tail(l.Path(), 0)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t,
		`{"timestamp":"2025-01-15 01:30:00","tool_name":"Bash","request_id":12345678901234567890,`+
			`"n":9007199254740993,"ratio":1.50,"hook_event_name":"PreToolUse","tool_input":{"z":1,"a":"<x>"}}`,
		lines[0])
}

func TestAppendRedactedKeepsOrderAndNumbers(t *testing.T) {
	fixed := time.Date(2025, 1, 15, 1, 30, 0, 0, time.UTC)
	l := newTestLogger(t, Options{Location: time.UTC, Redact: true, Now: func() time.Time { return fixed }})

	body := `{"tool_name":"Bash","n":9007199254740993,"password":"hunter2","hook_event_name":"PreToolUse"}`
	require.NoError(t, l.Append(context.Background(), testEnvelope(t, body)))

	lines, err := Tail(l.Path(), 0)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t,
		`{"timestamp":"2025-01-15 01:30:00","tool_name":"Bash","n":9007199254740993,`+
			`"password":"[REDACTED]","hook_event_name":"PreToolUse"}`,
		lines[0])
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestAppendHonorsContextWhileLockHeld(t *testing.T) {
	l := newTestLogger(t, Options{})
	require.NoError(t, os.MkdirAll(filepath.Dir(l.Path()), 0o755))

	// Another writer is stuck inside its critical section.
	other, err := New(Options{Path: l.Path()})
	require.NoError(t, err)
	blocker := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		lockAndWait(t, other.lockPath, holding, blocker)
	}()
	<-holding
	defer close(blocker)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = l.AppendFields(ctx, map[string]any{"a": 1})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentAppendsAreNotInterleaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hooks.log")

	const writers, perWriter = 10, 20
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			// Separate loggers share nothing but the files.
			l, err := New(Options{Path: path})
			if err != nil {
				t.Error(err)
				return
			}
			for i := 0; i < perWriter; i++ {
				fields := map[string]any{
					"writer":  w,
					"seq":     i,
					"payload": strings.Repeat("x", 4096),
				}
				if err := l.AppendFields(context.Background(), fields); err != nil {
					t.Error(err)
				}
			}
		}(w)
	}
	wg.Wait()

	res := Verify(path)
	require.True(t, res.Valid, "line %d: %s", res.ErrorLine, res.Error)
	assert.Equal(t, writers*perWriter, res.Lines)
}

// TestHelperProcess appends entries on behalf of
// TestConcurrentProcessesAppend.
func TestHelperProcess(t *testing.T) {
	path := os.Getenv(helperPathEnv)
	if path == "" {
		t.Skip("helper process")
	}
	n, _ := strconv.Atoi(os.Getenv(helperCountEnv))
	l, err := New(Options{Path: path})
	if err != nil {
		os.Exit(1)
	}
	for i := 0; i < n; i++ {
		fields := map[string]any{"pid": os.Getpid(), "seq": i, "payload": strings.Repeat("y", 8192)}
		if err := l.AppendFields(context.Background(), fields); err != nil {
			os.Exit(1)
		}
	}
	os.Exit(0)
}

func TestConcurrentProcessesAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hooks.log")

	const procs, perProc = 4, 25
	cmds := make([]*exec.Cmd, procs)
	for i := range cmds {
		cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
		cmd.Env = append(os.Environ(), helperPathEnv+"="+path, helperCountEnv+"="+strconv.Itoa(perProc))
		require.NoError(t, cmd.Start())
		cmds[i] = cmd
	}
	for _, cmd := range cmds {
		require.NoError(t, cmd.Wait())
	}

	res := Verify(path)
	require.True(t, res.Valid, "line %d: %s", res.ErrorLine, res.Error)
	assert.Equal(t, procs*perProc, res.Lines)
}

func TestVerifyReportsBrokenLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hooks.log")
	content := `{"timestamp":"2025-01-15 10:30:00","a":1}` + "\n" +
		`{"timestamp":"2025-01-15 10:30:01","a":` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	res := Verify(path)
	assert.False(t, res.Valid)
	assert.Equal(t, 2, res.ErrorLine)
}

func TestVerifyRequiresTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hooks.log")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`+"\n"), 0o644))

	res := Verify(path)
	assert.False(t, res.Valid)
	assert.Equal(t, 1, res.ErrorLine)
}

func TestVerifyMissingFile(t *testing.T) {
	res := Verify(filepath.Join(t.TempDir(), "nope.log"))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "open")
}

func TestTail(t *testing.T) {
	l := newTestLogger(t, Options{})
	for i := 0; i < 5; i++ {
		require.NoError(t, l.AppendFields(context.Background(), map[string]any{"seq": i}))
	}

	lines, err := Tail(l.Path(), 2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"seq":3`)
	assert.Contains(t, lines[1], `"seq":4`)

	lines, err = Tail(filepath.Join(t.TempDir(), "missing.log"), 3)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestRotation(t *testing.T) {
	clock := time.UnixMilli(1_750_000_000_000)
	l := newTestLogger(t, Options{
		MaxBytes:   200,
		MaxBackups: 2,
		Now: func() time.Time {
			clock = clock.Add(time.Millisecond)
			return clock
		},
	})

	for i := 0; i < 20; i++ {
		require.NoError(t, l.AppendFields(context.Background(), map[string]any{
			"seq":     i,
			"payload": strings.Repeat("z", 100),
		}))
	}

	backups := l.Backups()
	assert.Len(t, backups, 2)
	for _, b := range append(backups, l.Path()) {
		if _, err := os.Stat(b); err != nil {
			continue
		}
		res := Verify(b)
		assert.True(t, res.Valid, "%s line %d: %s", b, res.ErrorLine, res.Error)
	}
	assert.True(t, backups[0] > backups[1], "newest first")
}

func TestRotationWithinOneMillisecondKeepsBackups(t *testing.T) {
	frozen := time.UnixMilli(1_750_000_000_000)
	l := newTestLogger(t, Options{
		MaxBytes:   10,
		MaxBackups: 3,
		Now:        func() time.Time { return frozen },
	})

	for i := 0; i < 2; i++ {
		require.NoError(t, l.AppendFields(context.Background(), map[string]any{"seq": i}))
	}

	backups := l.Backups()
	require.Len(t, backups, 2)
	newest, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	oldest, err := os.ReadFile(backups[1])
	require.NoError(t, err)
	assert.Contains(t, string(newest), `"seq":1`)
	assert.Contains(t, string(oldest), `"seq":0`)
}

func TestFollowSeesAppendedLines(t *testing.T) {
	l := newTestLogger(t, Options{})
	require.NoError(t, l.AppendFields(context.Background(), map[string]any{"seq": "before"}))

	st, err := os.Stat(l.Path())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, l.Path(), st.Size(), func(line string) { got <- line })
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.AppendFields(context.Background(), map[string]any{"seq": i}))
	}

	for i := 0; i < 3; i++ {
		select {
		case line := <-got:
			assert.Contains(t, line, fmt.Sprintf(`"seq":%d`, i))
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for line %d", i)
		}
	}

	cancel()
	require.NoError(t, <-done)
}
