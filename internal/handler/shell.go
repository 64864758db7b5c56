package handler

import (
	"context"
	"fmt"
	"io"

	"github.com/ppiankov/hookguard/internal/envelope"
)

// ShellHandler reports shell tool activity.
type ShellHandler struct {
	out io.Writer
}

func NewShellHandler(out io.Writer) *ShellHandler {
	if out == nil {
		out = io.Discard
	}
	return &ShellHandler{out: out}
}

func (h *ShellHandler) Before(ctx context.Context, env *envelope.Envelope) error {
	fmt.Fprintf(h.out, "%s before: %s\n", env.ToolName, describe(env))
	return nil
}

func (h *ShellHandler) After(ctx context.Context, env *envelope.Envelope) error {
	fmt.Fprintf(h.out, "%s after: %s\n", env.ToolName, describe(env))
	return nil
}

func (h *ShellHandler) OnError(ctx context.Context, env *envelope.Envelope) error {
	fmt.Fprintf(h.out, "%s error: %s\n", env.ToolName, env.ErrorMessage)
	return nil
}

func describe(env *envelope.Envelope) string {
	if env.ToolInput.Command == "" {
		return "(no command)"
	}
	return env.ToolInput.Command
}
