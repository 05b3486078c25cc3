// Package mcpserver publishes julesmcp tools over the Model Context Protocol.
//
// A [Registry] owns the immutable catalogue of bound tools, keyed by name.
// [Registry.Execute] is the single dispatch path: it looks the tool up, runs
// its validating handler, and converts every outcome into a
// [mcpsdk.CallToolResult] envelope. Failures never escape as Go errors:
// validation problems, classified API failures and recovered panics all
// become error envelopes with a human-readable message and no structured
// content.
//
// Lifecycle:
//
//  1. Bind tools with [tools.Bind] and pass them to [New].
//  2. Call [Registry.Server] to obtain an SDK server with every tool attached.
//  3. Run it over stdio, or mount [HTTPHandler] for streamable HTTP.
//
// The registry is read-only after [New] returns and is safe for concurrent
// use.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/julesmcp/internal/jules"
	"github.com/MrWong99/julesmcp/internal/mcp/tools"
	"github.com/MrWong99/julesmcp/internal/observe"
)

// Failure categories recorded for envelopes that do not come from the API
// classifier.
const (
	categoryValidation  = "validation"
	categoryUnknownTool = "unknown_tool"
)

// Classifier maps a handler error onto a metric category and the message
// shown to the caller.
type Classifier func(err error) (category, message string)

// ClassifyJules is the default [Classifier], backed by [jules.Classify].
func ClassifyJules(err error) (string, string) {
	f := jules.Classify(err)
	return f.Category.String(), f.Message()
}

// Option is a functional option for configuring a [Registry].
type Option func(*Registry)

// WithClassifier replaces [ClassifyJules].
func WithClassifier(c Classifier) Option {
	return func(r *Registry) {
		if c != nil {
			r.classify = c
		}
	}
}

// WithMetrics records per-call counts, durations and failure categories
// into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// Registry is the immutable set of tools served by one process.
type Registry struct {
	tools    map[string]tools.Tool
	order    []string
	classify Classifier
	metrics  *observe.Metrics
}

// New builds a Registry from ts. Tool names must be unique and every tool
// needs a handler.
func New(ts []tools.Tool, opts ...Option) (*Registry, error) {
	r := &Registry{
		tools:    make(map[string]tools.Tool, len(ts)),
		classify: ClassifyJules,
	}
	for _, t := range ts {
		if t.Name == "" {
			return nil, errors.New("mcpserver: tool must have a non-empty name")
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("mcpserver: tool %q must have a non-nil handler", t.Name)
		}
		if _, dup := r.tools[t.Name]; dup {
			return nil, fmt.Errorf("mcpserver: duplicate tool name %q", t.Name)
		}
		r.tools[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Descriptors returns the descriptors of all tools in registration order.
func (r *Registry) Descriptors() []tools.Descriptor {
	out := make([]tools.Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Descriptor)
	}
	return out
}

// Execute runs the named tool with raw JSON args and always returns an
// envelope. When IsError is set the text is a diagnosis and
// StructuredContent is nil.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) *mcpsdk.CallToolResult {
	ctx, span := observe.StartSpan(ctx, "tool "+name,
		trace.WithAttributes(attribute.String("mcp.tool", name)),
	)
	defer span.End()

	start := time.Now()
	res, category, err := r.dispatch(ctx, name, args)
	elapsed := time.Since(start)

	status := "ok"
	if res.IsError {
		status = "error"
		res.StructuredContent = nil
		span.SetAttributes(attribute.String("mcp.failure_category", category))
		observe.FailSpan(span, err)
	}

	if r.metrics != nil {
		r.metrics.RecordToolCall(ctx, name, status, elapsed)
		if res.IsError {
			r.metrics.RecordToolFailure(ctx, name, category)
		}
	}

	log := observe.Logger(ctx)
	if res.IsError {
		log.Warn("tool call failed",
			"tool", name,
			"category", category,
			"duration", elapsed,
			"err", err,
		)
	} else {
		log.Debug("tool call completed",
			"tool", name,
			"duration", elapsed,
		)
	}
	return res
}

// dispatch moves one call through validation, execution and
// classification. The returned envelope is never nil.
func (r *Registry) dispatch(ctx context.Context, name string, args json.RawMessage) (*mcpsdk.CallToolResult, string, error) {
	tool, ok := r.tools[name]
	if !ok {
		err := fmt.Errorf("mcpserver: tool %q not found", name)
		return tools.ErrorResult(fmt.Sprintf("Error: Unknown tool %q.", name)), categoryUnknownTool, err
	}

	res, err := invoke(ctx, tool, args)

	var verr *tools.ValidationError
	switch {
	case errors.As(err, &verr):
		return tools.ErrorResult("Error: Invalid input: " + verr.Error()), categoryValidation, err
	case err != nil:
		category, msg := r.classify(err)
		return tools.ErrorResult(msg), category, err
	case res == nil:
		err = fmt.Errorf("mcpserver: tool %q returned no result", name)
		category, msg := r.classify(err)
		return tools.ErrorResult(msg), category, err
	case res.IsError:
		return res, jules.CategoryUnknown.String(), errors.New(tools.Text(res))
	}
	return res, "", nil
}

// invoke runs the tool handler, converting a panic into an error.
func invoke(ctx context.Context, tool tools.Tool, args json.RawMessage) (res *mcpsdk.CallToolResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = fmt.Errorf("mcpserver: tool %q panicked: %v", tool.Name, p)
		}
	}()
	return tool.Handler(ctx, args)
}

// Attach registers every tool on s. Calls arriving through s are routed to
// [Registry.Execute].
func (r *Registry) Attach(s *mcpsdk.Server) {
	for _, name := range r.order {
		t := r.tools[name]
		s.AddTool(sdkTool(t.Descriptor), func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			var args json.RawMessage
			if req != nil && req.Params != nil {
				args = req.Params.Arguments
			}
			return r.Execute(ctx, name, args), nil
		})
	}
}

// Server returns a new SDK server identified by impl with every tool
// attached.
func (r *Registry) Server(impl *mcpsdk.Implementation) *mcpsdk.Server {
	s := mcpsdk.NewServer(impl, &mcpsdk.ServerOptions{Logger: slog.Default()})
	r.Attach(s)
	return s
}

// HTTPHandler serves s over the MCP streamable HTTP transport.
func HTTPHandler(s *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s
	}, &mcpsdk.StreamableHTTPOptions{Logger: slog.Default()})
}

// sdkTool converts a descriptor into the SDK's tool definition.
func sdkTool(d tools.Descriptor) *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        d.Name,
		Title:       d.Title,
		Description: d.Description,
		InputSchema: d.InputSchema,
		Annotations: &mcpsdk.ToolAnnotations{
			Title:           d.Title,
			ReadOnlyHint:    d.Annotations.ReadOnly,
			DestructiveHint: boolPtr(d.Annotations.Destructive),
			IdempotentHint:  d.Annotations.Idempotent,
			OpenWorldHint:   boolPtr(d.Annotations.OpenWorld),
		},
	}
}

func boolPtr(b bool) *bool { return &b }
