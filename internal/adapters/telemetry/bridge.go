package telemetry

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/majak-build/majak/internal/core/ports"
)

// LogBridge implements sdktrace.SpanProcessor, forwarding span start/end/
// error events to a ports.Logger instead of a terminal UI.
type LogBridge struct {
	logger ports.Logger
}

// NewLogBridge returns a LogBridge writing to logger.
func NewLogBridge(logger ports.Logger) *LogBridge {
	return &LogBridge{logger: logger}
}

// OnStart is called when a span starts.
func (b *LogBridge) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	sc := s.SpanContext()
	if !sc.IsValid() {
		return
	}

	var parentID string
	if parentSpan := trace.SpanFromContext(parent); parentSpan.SpanContext().IsValid() {
		parentID = parentSpan.SpanContext().SpanID().String()
	}

	b.logger.Debug("span started",
		"span", sc.SpanID().String(),
		"parent", parentID,
		"name", s.Name(),
	)
}

// OnEnd is called when a span ends.
func (b *LogBridge) OnEnd(s sdktrace.ReadOnlySpan) {
	sc := s.SpanContext()
	if !sc.IsValid() {
		return
	}

	if s.Status().Code == codes.Error {
		desc := s.Status().Description
		if desc == "" {
			desc = "span failed"
		}
		b.logger.Warn("span failed", "span", sc.SpanID().String(), "name", s.Name(), "reason", desc)
		return
	}

	b.logger.Debug("span finished",
		"span", sc.SpanID().String(),
		"name", s.Name(),
		"duration", s.EndTime().Sub(s.StartTime()).String(),
	)
}

// ForceFlush does nothing; the Logger has no buffering to drain.
func (b *LogBridge) ForceFlush(context.Context) error {
	return nil
}

// Shutdown does nothing.
func (b *LogBridge) Shutdown(context.Context) error {
	return nil
}
