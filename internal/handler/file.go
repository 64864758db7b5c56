package handler

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/hookguard/internal/envelope"
	"github.com/ppiankov/hookguard/internal/hookerr"
	"github.com/ppiankov/hookguard/internal/redact"
)

// FileHandler serves every file read/write/edit tool. After a mutating tool
// it runs the formatters whose extensions match the touched file.
type FileHandler struct {
	out        io.Writer
	runner     Runner
	formatters []Formatter
}

// NewFileHandler returns a file handler. A nil runner means ExecRunner.
func NewFileHandler(out io.Writer, runner Runner, formatters []Formatter) *FileHandler {
	if out == nil {
		out = io.Discard
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FileHandler{out: out, runner: runner, formatters: formatters}
}

func (h *FileHandler) Before(ctx context.Context, env *envelope.Envelope) error {
	return nil
}

// After formats the file written by Write, Edit or MultiEdit. A formatter
// that exits non-zero aborts the remaining steps with a subprocess error.
func (h *FileHandler) After(ctx context.Context, env *envelope.Envelope) error {
	if !envelope.IsFileMutation(env.ToolName) {
		return nil
	}
	path := env.ToolInput.FilePath
	if path == "" {
		return nil
	}
	for _, f := range h.formatters {
		if !f.Matches(path) {
			continue
		}
		for i, cmd := range f.Commands {
			args := f.Expand(cmd, path)
			if len(args) == 0 {
				continue
			}
			if err := h.run(ctx, fmt.Sprintf("%s step %d", f.Name, i+1), path, args); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *FileHandler) run(ctx context.Context, step, path string, args []string) error {
	res, err := h.runner.Run(ctx, args[0], args[1:]...)
	if err != nil {
		return hookerr.NewFatal(step, err)
	}
	if res.ExitCode != 0 {
		stdout, _ := redact.String(res.Stdout)
		stderr, _ := redact.String(res.Stderr)
		return hookerr.NewSubprocess(step, strings.Join(args, " "), res.ExitCode, stdout, stderr)
	}
	fmt.Fprintf(h.out, "%s: %s - %d\n", step, path, res.ExitCode)
	return nil
}

func (h *FileHandler) OnError(ctx context.Context, env *envelope.Envelope) error {
	fmt.Fprintf(h.out, "%s error: %s\n", env.ToolName, env.ErrorMessage)
	return nil
}
