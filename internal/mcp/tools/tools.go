// Package tools defines the shared [Tool] type used by the MCP tool packages
// of julesmcp, together with [Bind], the single validate-then-dispatch
// binding every tool goes through.
//
// A tool is declared once as a [Descriptor] carrying a JSON Schema for its
// input. [Bind] resolves that schema at startup and wraps a typed handler so
// that, at call time, raw arguments are defaulted, validated and decoded into
// the handler's parameter struct before it runs. Inputs that fail this step
// never reach the handler; they surface as [*ValidationError].
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Annotations are advisory behaviour hints published with a tool. They are
// never enforced.
type Annotations struct {
	ReadOnly    bool
	Destructive bool
	Idempotent  bool
	OpenWorld   bool
}

// Descriptor is the static, public description of a tool.
type Descriptor struct {
	// Name is the unique dispatch key.
	Name string

	// Title is a short human-readable label.
	Title string

	// Description tells the agent when and how to use the tool.
	Description string

	// InputSchema declares the accepted arguments, including defaults and
	// bounds. It must have type "object".
	InputSchema *jsonschema.Schema

	// Annotations are advisory hints for the host.
	Annotations Annotations
}

// Handler executes one call with raw JSON arguments. A returned error is
// turned into an error envelope by the caller.
type Handler func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)

// Tool is a descriptor bound to its handler, ready for registration.
type Tool struct {
	Descriptor

	// Handler validates args against InputSchema and runs the tool.
	// Implementations must be safe for concurrent use and must respect
	// context cancellation.
	Handler Handler
}

// ValidationError reports arguments rejected by a tool's input schema.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Bind resolves desc.InputSchema and returns a [Tool] whose handler applies
// schema defaults, validates, decodes the arguments into In and then calls
// fn. Schema problems are reported here, at startup, rather than per call.
func Bind[In any](desc Descriptor, fn func(ctx context.Context, in In) (*mcp.CallToolResult, error)) (Tool, error) {
	if desc.Name == "" {
		return Tool{}, errors.New("tools: descriptor must have a non-empty name")
	}
	if fn == nil {
		return Tool{}, fmt.Errorf("tools: tool %q must have a non-nil handler", desc.Name)
	}
	if desc.InputSchema == nil {
		return Tool{}, fmt.Errorf("tools: tool %q must have an input schema", desc.Name)
	}
	if desc.InputSchema.Type != "object" {
		return Tool{}, fmt.Errorf("tools: tool %q input schema must have type \"object\", got %q", desc.Name, desc.InputSchema.Type)
	}
	resolved, err := desc.InputSchema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return Tool{}, fmt.Errorf("tools: resolve schema for %q: %w", desc.Name, err)
	}

	name := desc.Name
	return Tool{
		Descriptor: desc,
		Handler: func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
			in, err := decode[In](resolved, args)
			if err != nil {
				return nil, &ValidationError{Tool: name, Err: err}
			}
			return fn(ctx, in)
		},
	}, nil
}

// MustBind is like [Bind] but panics on error. It is meant for package-level
// tool tables whose schemas are fixed at compile time.
func MustBind[In any](desc Descriptor, fn func(ctx context.Context, in In) (*mcp.CallToolResult, error)) Tool {
	t, err := Bind(desc, fn)
	if err != nil {
		panic(err)
	}
	return t
}

// decode turns raw arguments into In. Absent arguments and JSON null are
// treated as an empty object so that defaults still apply.
func decode[In any](resolved *jsonschema.Resolved, args json.RawMessage) (In, error) {
	var in In

	m := make(map[string]any)
	if trimmed := bytes.TrimSpace(args); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return in, fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}
	if err := resolved.ApplyDefaults(&m); err != nil {
		return in, fmt.Errorf("applying defaults: %w", err)
	}
	if err := resolved.Validate(&m); err != nil {
		return in, err
	}

	data, err := json.Marshal(m)
	if err != nil {
		return in, fmt.Errorf("re-encoding arguments: %w", err)
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("decoding arguments: %w", err)
	}
	return in, nil
}
