// Package prompts holds parameterized prompt templates and resolves
// them against supplied variable bindings.
package prompts

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/flydevtools/flyserve/internal/protocol"
)

// ErrNotFound indicates a requested prompt is not registered.
var ErrNotFound = errors.New("prompt not found")

// Variable describes one named prompt parameter.
type Variable struct {
	Name        string
	Description string
	Required    bool
}

// Definition describes a registered prompt. The template references
// variables as {{name}}; unknown placeholders are left untouched.
type Definition struct {
	ID          string
	Title       string
	Description string
	Variables   []Variable
	Template    string
}

// Summary returns the external-facing metadata for the definition.
func (d *Definition) Summary() protocol.PromptSummary {
	args := make([]protocol.PromptArgument, 0, len(d.Variables))
	for _, v := range d.Variables {
		args = append(args, protocol.PromptArgument{
			Name:        v.Name,
			Description: v.Description,
			Required:    v.Required,
		})
	}
	return protocol.PromptSummary{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Arguments:   args,
	}
}

// Registry manages prompt definitions, written at startup and read
// thereafter.
type Registry struct {
	mu      sync.RWMutex
	prompts map[string]*Definition
	order   []string
}

// NewRegistry creates an empty prompt registry.
func NewRegistry() *Registry {
	return &Registry{prompts: make(map[string]*Definition)}
}

// Register inserts a definition by ID, overwriting on duplicates.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("prompt definition requires an ID")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.prompts[def.ID]; !exists {
		r.order = append(r.order, def.ID)
	}
	r.prompts[def.ID] = def
	return nil
}

// List returns all prompt summaries in registration order.
func (r *Registry) List() []protocol.PromptSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	summaries := make([]protocol.PromptSummary, 0, len(r.order))
	for _, id := range r.order {
		if def, ok := r.prompts[id]; ok {
			summaries = append(summaries, def.Summary())
		}
	}
	return summaries
}

// Get resolves a prompt by ID, substituting the supplied variables into
// its template. Missing required variables are an error; optional
// variables default to empty.
func (r *Registry) Get(id string, variables map[string]string) (*protocol.GetPromptResult, error) {
	r.mu.RLock()
	def, ok := r.prompts[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	text := def.Template
	for _, v := range def.Variables {
		value, supplied := variables[v.Name]
		if v.Required && (!supplied || strings.TrimSpace(value) == "") {
			return nil, fmt.Errorf("prompt %s: required variable %q missing", id, v.Name)
		}
		text = strings.ReplaceAll(text, "{{"+v.Name+"}}", value)
	}

	return &protocol.GetPromptResult{
		Description: def.Description,
		Messages: []protocol.PromptMessage{
			{
				Role:    "user",
				Content: protocol.MessageContent{Type: "text", Text: text},
			},
		},
	}, nil
}
