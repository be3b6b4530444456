package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"voice-bridge/internal/realtime"
)

// CallContext identifies the call a function runs for. Handlers must scope
// every side effect to TenantID.
type CallContext struct {
	TenantID string
	CallID   string
	Caller   string
	Location *time.Location
}

// Handler executes a function. Returned errors are turned into the tool's
// FailureMessage; business outcomes (slot taken, missing data) should be
// returned as output text so the model can explain them.
type Handler func(ctx context.Context, call CallContext, args json.RawMessage) (string, error)

type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON schema with "type":"object".
	Parameters json.RawMessage
	// Timeout overrides the dispatcher default when > 0.
	Timeout time.Duration
	// FailureMessage is spoken-recoverable text returned on error or timeout.
	FailureMessage string
	Handler        Handler
}

var (
	ErrUnknownFunction = errors.New("functions: unknown function")
	ErrInvalidTool     = errors.New("functions: invalid tool")
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Registry maps function names to tools. It is immutable after construction.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry validates every tool. Any invalid or duplicate tool is an error.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is NewRegistry for static tool sets wired at startup.
func MustRegistry(tools ...Tool) *Registry {
	r, err := NewRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) add(t Tool) error {
	if err := ValidateTool(t); err != nil {
		return err
	}
	if _, dup := r.tools[t.Name]; dup {
		return fmt.Errorf("%w: duplicate name %q", ErrInvalidTool, t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// ValidateTool checks the tool's name, schema and handler.
func ValidateTool(t Tool) error {
	if !namePattern.MatchString(t.Name) {
		return fmt.Errorf("%w: name %q must match %s", ErrInvalidTool, t.Name, namePattern)
	}
	if t.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidTool, t.Name)
	}
	var schema struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(t.Parameters, &schema); err != nil {
		return fmt.Errorf("%w: %s parameters are not a JSON object: %v", ErrInvalidTool, t.Name, err)
	}
	if schema.Type != "object" {
		return fmt.Errorf("%w: %s parameters must have \"type\":\"object\"", ErrInvalidTool, t.Name)
	}
	return nil
}

// With returns a new registry extending r. Extras that fail validation or
// collide with an existing name are reported in skipped and left out.
func (r *Registry) With(extra ...Tool) (out *Registry, skipped []error) {
	out = &Registry{tools: make(map[string]Tool, len(r.tools)+len(extra)), order: append([]string(nil), r.order...)}
	for k, v := range r.tools {
		out.tools[k] = v
	}
	for _, t := range extra {
		if err := out.add(t); err != nil {
			skipped = append(skipped, err)
		}
	}
	return out, skipped
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string { return append([]string(nil), r.order...) }

// Definitions renders the registry for the model's session configuration.
func (r *Registry) Definitions() []realtime.Tool {
	out := make([]realtime.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, realtime.Tool{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return out
}

// sortedNames is used in error text so output is deterministic.
func (r *Registry) sortedNames() []string {
	n := r.Names()
	sort.Strings(n)
	return n
}
