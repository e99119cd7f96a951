package ports

import (
	"context"
	"io"
)

// SpanConfig carries span-start options. Currently unused by any concrete
// Tracer but kept so callers can add attributes without changing the
// Tracer interface.
type SpanConfig struct {
	Attributes map[string]any
}

// SpanOption mutates a SpanConfig at span-start time.
type SpanOption func(*SpanConfig)

// WithAttribute sets an attribute on span start.
func WithAttribute(key string, value any) SpanOption {
	return func(c *SpanConfig) {
		if c.Attributes == nil {
			c.Attributes = make(map[string]any)
		}
		c.Attributes[key] = value
	}
}

// Tracer opens spans around builder/runner work, independent of any
// particular tracing backend.
//
//go:generate mockgen -source=tracer.go -destination=mocks/mock_tracer.go -package=mocks
type Tracer interface {
	Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)
	// EmitPlan records the set of outputs a build run intends to produce,
	// as an event on the current span.
	EmitPlan(ctx context.Context, outputs []string)
}

// Span is one traced unit of work: one edge's command, or the build as a
// whole.
type Span interface {
	io.Writer
	End()
	SetAttribute(key string, value any)
}
