package handler

// Registry maps tool names to handlers.
type Registry struct {
	handlers map[string]Handler
	fallback Handler
}

// NewRegistry binds the built-in tool names to the given shared instances:
// one shell handler and one file handler serve every tool of their variant.
func NewRegistry(shell, file Handler) *Registry {
	r := &Registry{
		handlers: make(map[string]Handler, len(builtinBindings)),
		fallback: Noop{},
	}
	for tool, v := range builtinBindings {
		switch v {
		case VariantShell:
			r.handlers[tool] = shell
		case VariantFile:
			r.handlers[tool] = file
		}
	}
	return r
}

// Register binds tool to h, replacing any existing binding.
func (r *Registry) Register(tool string, h Handler) {
	if h == nil {
		h = r.fallback
	}
	r.handlers[tool] = h
}

// Lookup returns the handler bound to tool by exact name, or the no-op
// handler when none is bound.
func (r *Registry) Lookup(tool string) Handler {
	if h, ok := r.handlers[tool]; ok && h != nil {
		return h
	}
	return r.fallback
}

// Tools returns the number of bound tool names.
func (r *Registry) Tools() int {
	return len(r.handlers)
}
