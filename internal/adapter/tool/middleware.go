package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"webscout/internal/domain"
	"webscout/internal/infra/tracer"
)

// retryHint is appended to the content of retryable error results.
const retryHint = " (transient error, may succeed on retry)"

// Execute is the pipeline shared by the web tools: decode params, open a span,
// run the handler, then shape its outcome into a ToolResult.
//
// The handler may return:
//   - (string, nil) for a plain-text result
//   - (*domain.ToolResult, nil) to control the result directly
//   - (any other value, nil) to have it JSON-encoded
//   - (nil, error) for an error result; transient errors are flagged IsRetryable
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	var p P
	if err := json.Unmarshal(rawParams, &p); err != nil {
		tracer.RecordError(span, err)
		return ErrResult("invalid params: %v", err), nil
	}

	start := time.Now()
	result, err := handler(ctx, span, p)
	elapsed := time.Since(start)

	if err != nil {
		return failure(span, logger, spanName, elapsed, err), nil
	}
	logger.Debug(spanName+" done", "duration", elapsed)
	return formatResult(span, result), nil
}

// failure turns a handler error into an error result, classifying it as
// retryable or permanent.
func failure(span trace.Span, logger *slog.Logger, spanName string, elapsed time.Duration, err error) *domain.ToolResult {
	tracer.RecordError(span, err)

	retryable := classifyToolError(err)
	code := domain.ErrorCodeOf(err)
	span.SetAttributes(
		tracer.BoolAttr("tool.retryable", retryable),
		tracer.StringAttr("tool.error_code", string(code)),
	)
	logger.Warn(spanName+" failed", "error", err, "code", code, "retryable", retryable, "duration", elapsed)

	content := err.Error()
	if retryable {
		content += retryHint
	}
	return &domain.ToolResult{IsError: true, IsRetryable: retryable, Content: content}
}

func formatResult(span trace.Span, result any) *domain.ToolResult {
	switch v := result.(type) {
	case *domain.ToolResult:
		if v.IsError {
			tracer.RecordError(span, fmt.Errorf("%s", v.Content))
		} else {
			tracer.SetOK(span)
		}
		return v
	case string:
		tracer.SetOK(span)
		return &domain.ToolResult{Content: v}
	default:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			tracer.RecordError(span, err)
			return ErrResult("failed to format response: %v", err)
		}
		tracer.SetOK(span)
		return &domain.ToolResult{Content: string(data)}
	}
}

// ErrResult creates an error ToolResult for input problems that should reach
// the caller without being logged as failures.
func ErrResult(format string, args ...any) *domain.ToolResult {
	return &domain.ToolResult{
		IsError: true,
		Content: fmt.Sprintf(format, args...),
	}
}
