package handler

import (
	"context"
	"fmt"
	"io"

	"github.com/ppiankov/hookguard/internal/envelope"
)

// Lookuper resolves a tool name to its handler.
type Lookuper interface {
	Lookup(tool string) Handler
}

// Route is what a dispatch did.
type Route int

const (
	RouteNone Route = iota
	RouteBefore
	RouteAfter
	RouteNotification
	RouteStop
	RouteSubagentStop
)

func (r Route) String() string {
	switch r {
	case RouteBefore:
		return "before"
	case RouteAfter:
		return "after"
	case RouteNotification:
		return "notification"
	case RouteStop:
		return "stop"
	case RouteSubagentStop:
		return "subagent-stop"
	default:
		return "none"
	}
}

// Dispatcher routes an event to exactly one reaction.
type Dispatcher struct {
	handlers Lookuper
	out      io.Writer
}

// NewDispatcher returns a dispatcher printing non-tool events to out.
func NewDispatcher(handlers Lookuper, out io.Writer) *Dispatcher {
	if out == nil {
		out = io.Discard
	}
	return &Dispatcher{handlers: handlers, out: out}
}

// Dispatch runs the reaction for env.
//
// Tool-scoped events with a tool name go to the bound handler's Before or
// After; when they also carry an error_message, OnError runs afterwards.
// Notification, Stop and SubagentStop print a fixed line and never consult
// the handler table. Anything else is ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, env *envelope.Envelope) (Route, error) {
	switch env.Kind {
	case envelope.PreToolUse, envelope.PostToolUse:
		if env.ToolName == "" {
			return RouteNone, nil
		}
		h := d.handlers.Lookup(env.ToolName)
		route := RouteBefore
		var err error
		if env.Kind == envelope.PreToolUse {
			err = h.Before(ctx, env)
		} else {
			route = RouteAfter
			err = h.After(ctx, env)
		}
		if err != nil {
			return route, err
		}
		if env.ErrorMessage != "" {
			if err := h.OnError(ctx, env); err != nil {
				return route, err
			}
		}
		return route, nil

	case envelope.Notification:
		msg := env.Message
		if msg == "" {
			msg = "(no message)"
		}
		fmt.Fprintf(d.out, "Notification: %s\n", msg)
		return RouteNotification, nil

	case envelope.Stop:
		fmt.Fprintf(d.out, "Stop: stop_hook_active=%t\n", env.StopHookActive)
		return RouteStop, nil

	case envelope.SubagentStop:
		fmt.Fprintln(d.out, "SubagentStop")
		return RouteSubagentStop, nil
	}
	return RouteNone, nil
}
