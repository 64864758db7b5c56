package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ppiankov/hookguard/internal/envelope"
	"github.com/ppiankov/hookguard/internal/eventlog"
)

var (
	tailLines  int
	tailFollow bool
)

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.AddCommand(logTailCmd)
	logCmd.AddCommand(logVerifyCmd)
	logTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	logTailCmd.Flags().BoolVarP(&tailFollow, "follow", "f", false, "Keep printing entries as they are appended")
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Event log operations",
	Long:  "Commands for inspecting the shared JSONL event log written by hookguard run.",
}

var logTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent event log entries",
	Long:  "Prints the last N entries of the event log, one per line. With -f, keeps\nprinting entries as other hook processes append them.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogTail,
}

var logVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Check that every event log line is a complete entry",
	Long:  "Reads the event log and checks that every line is one JSON object with a\ntimestamp. Exits non-zero at the first bad line.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogVerify,
}

func logPathArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.LogPath(), nil
}

func runLogTail(cmd *cobra.Command, args []string) error {
	path, err := logPathArg(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	color := isTerminal(out)

	lines, err := eventlog.Tail(path, tailLines)
	if err != nil {
		return err
	}
	for _, line := range lines {
		printEntry(out, line, color)
	}
	if !tailFollow {
		return nil
	}

	var offset int64
	if st, err := os.Stat(path); err == nil {
		offset = st.Size()
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return eventlog.Follow(ctx, path, offset, func(line string) {
		printEntry(out, line, color)
	})
}

func runLogVerify(cmd *cobra.Command, args []string) error {
	path, err := logPathArg(args)
	if err != nil {
		return err
	}
	result := eventlog.Verify(path)
	if !result.Valid {
		if result.ErrorLine > 0 {
			return fmt.Errorf("%s: line %d: %s", path, result.ErrorLine, result.Error)
		}
		return fmt.Errorf("%s: %s", path, result.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified (%s)\n", result.Lines, humanize.Bytes(uint64(result.Bytes)))
	return nil
}

const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiCyan   = "\033[36m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
)

// printEntry renders one log line as
// "<timestamp>  <event>  <tool>  <session>  <target>".
// Lines that are not entries are printed as they are.
func printEntry(w io.Writer, line string, color bool) {
	e, err := eventlog.ParseEntry([]byte(line))
	if err != nil {
		fmt.Fprintln(w, line)
		return
	}

	kind := e.Kind()
	cols := []string{
		paint(e.Timestamp(), ansiDim, color),
		paint(fmt.Sprintf("%-13s", kind), kindColor(kind), color),
		fmt.Sprintf("%-12s", dash(e.Tool())),
		dash(e.SessionID()),
	}
	if target := entryTarget(e); target != "" {
		cols = append(cols, target)
	}
	fmt.Fprintln(w, strings.Join(cols, "  "))
}

func entryTarget(e eventlog.Entry) string {
	if msg, ok := e["error_message"].(string); ok && msg != "" {
		return "error: " + msg
	}
	if in, ok := e["tool_input"].(map[string]any); ok {
		for _, key := range []string{"file_path", "command"} {
			if v, ok := in[key].(string); ok && v != "" {
				return v
			}
		}
	}
	if msg, ok := e["message"].(string); ok {
		return msg
	}
	return ""
}

func kindColor(kind string) string {
	switch envelope.EventKind(kind) {
	case envelope.PreToolUse:
		return ansiCyan
	case envelope.PostToolUse:
		return ansiYellow
	case envelope.Stop, envelope.SubagentStop:
		return ansiRed
	}
	return ""
}

func paint(s, code string, color bool) string {
	if !color || code == "" {
		return s
	}
	return code + s + ansiReset
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
