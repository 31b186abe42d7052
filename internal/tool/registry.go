package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/gosuda/helpdesk/internal/domain"
)

var (
	// ErrUnknownTool is returned when the model asks for a tool that is not registered.
	ErrUnknownTool = errors.New("tool: unknown tool") //nolint:gochecknoglobals // sentinel error
	// ErrInvalidInput is returned when tool input fails validation.
	ErrInvalidInput = errors.New("tool: invalid input") //nolint:gochecknoglobals // sentinel error
)

// Handler executes a tool with its raw JSON input and returns the text handed
// back to the model.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool is a named, schema-described capability the model may invoke.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage // JSON Schema of the input object
	Handler     Handler
}

// Registry maps tool names to their definitions.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Execute dispatches an invocation by name.
func (r *Registry) Execute(ctx context.Context, inv domain.ToolInvocation) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[inv.Name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("tool.Registry.Execute(%q): %w", inv.Name, ErrUnknownTool)
	}

	input := inv.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}

	out, err := t.Handler(ctx, input)
	if err != nil {
		return "", fmt.Errorf("tool.Registry.Execute(%q): %w", inv.Name, err)
	}

	return out, nil
}

// Definitions returns all registered tools sorted by name.
func (r *Registry) Definitions() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := slices.Collect(func(yield func(Tool) bool) {
		for _, t := range r.tools {
			if !yield(t) {
				return
			}
		}
	})
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	return defs
}

// Available returns registered tool names in sorted order.
func (r *Registry) Available() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// decodeInput unmarshals raw tool input, wrapping failures in ErrInvalidInput.
func decodeInput(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}
