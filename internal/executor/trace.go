// Tracing instrumentation for the executor.
package executor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func tracer() trace.Tracer {
	return otel.Tracer("deskdriver/executor")
}

// startRunSpan starts a span for the whole task run.
func startRunSpan(ctx context.Context, tc *TaskContext) (context.Context, trace.Span) {
	ctx, span := tracer().Start(ctx, "task.run")
	span.SetAttributes(
		attribute.String("task.id", tc.TaskID),
		attribute.String("task.request_id", tc.RequestID),
		attribute.Int("task.steps", len(tc.Plan.Steps)),
		attribute.Bool("task.dry_run", tc.Options.DryRun),
	)
	return ctx, span
}

// endRunSpan ends the run span with the overall status.
func endRunSpan(span trace.Span, status string) {
	span.SetAttributes(attribute.String("task.status", status))
	span.End()
}

// startStepSpan starts a span for one step dispatch.
func startStepSpan(ctx context.Context, action string, index int) (context.Context, trace.Span) {
	ctx, span := tracer().Start(ctx, "step."+action)
	span.SetAttributes(
		attribute.String("step.action", action),
		attribute.Int("step.index", index),
	)
	return ctx, span
}

// endStepSpan ends the step span with its terminal status and reason.
func endStepSpan(span trace.Span, status, reason string) {
	span.SetAttributes(attribute.String("step.status", status))
	if reason != "" {
		span.SetAttributes(attribute.String("step.reason", reason))
	}
	span.End()
}
