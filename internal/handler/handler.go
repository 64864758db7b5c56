// Package handler maps hook events to side-effecting reactions.
//
// Handlers form a closed set of variants (no-op, shell, file) bound to tool
// names through an explicit table; unknown tools fall back to the no-op
// variant. Custom handlers can still be registered per tool name.
package handler

import (
	"context"

	"github.com/ppiankov/hookguard/internal/envelope"
)

// Handler reacts to tool-scoped events.
// Instances may be shared between tool names and reused across dispatches,
// but must not keep state between processes.
type Handler interface {
	Before(ctx context.Context, env *envelope.Envelope) error
	After(ctx context.Context, env *envelope.Envelope) error
	OnError(ctx context.Context, env *envelope.Envelope) error
}

// Variant identifies a built-in handler behavior.
type Variant int

const (
	VariantNoop Variant = iota
	VariantShell
	VariantFile
)

func (v Variant) String() string {
	switch v {
	case VariantShell:
		return "shell"
	case VariantFile:
		return "file"
	default:
		return "noop"
	}
}

// builtinBindings is the startup mapping from tool name to variant.
var builtinBindings = map[string]Variant{
	envelope.ToolBash:         VariantShell,
	envelope.ToolRead:         VariantFile,
	envelope.ToolEdit:         VariantFile,
	envelope.ToolMultiEdit:    VariantFile,
	envelope.ToolWrite:        VariantFile,
	envelope.ToolNotebookRead: VariantFile,
	envelope.ToolNotebookEdit: VariantFile,
}

// BuiltinVariant returns the variant a tool is bound to at startup.
func BuiltinVariant(tool string) Variant {
	return builtinBindings[tool]
}

// Noop does nothing. It is the fallback for unbound tools.
type Noop struct{}

func (Noop) Before(context.Context, *envelope.Envelope) error  { return nil }
func (Noop) After(context.Context, *envelope.Envelope) error   { return nil }
func (Noop) OnError(context.Context, *envelope.Envelope) error { return nil }
