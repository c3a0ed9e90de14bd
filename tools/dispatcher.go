package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/slighter12/dataset-mcp-go/logger"
	"github.com/slighter12/dataset-mcp-go/tools/types"
)

const instrumentationName = "github.com/slighter12/dataset-mcp-go/tools"

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request is one tool invocation as delivered by a transport.
type Request struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Response is the normalized outcome of a dispatch. Exactly one is produced
// per Request.
type Response struct {
	Status  string
	Result  any
	Kind    string
	Message string
	Details map[string]any
	CallID  string
}

func (r Response) OK() bool {
	return r.Status == StatusOK
}

// MarshalJSON emits {status, result} on success and
// {status, kind, message[, details]} on error.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.OK() {
		return json.Marshal(struct {
			Status string `json:"status"`
			Result any    `json:"result"`
		}{r.Status, r.Result})
	}
	return json.Marshal(struct {
		Status  string         `json:"status"`
		Kind    string         `json:"kind"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	}{r.Status, r.Kind, r.Message, r.Details})
}

// Dispatcher resolves, validates and invokes tool calls against a frozen
// registry. It is safe for concurrent use.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration

	tracer      trace.Tracer
	invocations metric.Int64Counter
	latency     metric.Float64Histogram
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherOptions)

type dispatcherOptions struct {
	timeout        time.Duration
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithDefaultTimeout bounds every invocation. Zero means no timeout.
func WithDefaultTimeout(timeout time.Duration) DispatcherOption {
	return func(o *dispatcherOptions) { o.timeout = timeout }
}

func WithTracerProvider(tp trace.TracerProvider) DispatcherOption {
	return func(o *dispatcherOptions) { o.tracerProvider = tp }
}

func WithMeterProvider(mp metric.MeterProvider) DispatcherOption {
	return func(o *dispatcherOptions) { o.meterProvider = mp }
}

// NewDispatcher freezes registry and returns a dispatcher over it. Telemetry
// defaults to the global OpenTelemetry providers.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("dispatcher requires a registry")
	}
	options := dispatcherOptions{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.timeout < 0 {
		return nil, fmt.Errorf("invalid dispatch timeout %s", options.timeout)
	}

	meter := options.meterProvider.Meter(instrumentationName)
	invocations, err := meter.Int64Counter(
		"mcp.tool.invocations",
		metric.WithDescription("Number of tool dispatches"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"mcp.tool.latency",
		metric.WithDescription("Tool dispatch latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	registry.Freeze()
	return &Dispatcher{
		registry:    registry,
		timeout:     options.timeout,
		tracer:      options.tracerProvider.Tracer(instrumentationName),
		invocations: invocations,
		latency:     latency,
	}, nil
}

// Registry returns the registry the dispatcher serves.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs one request through lookup, validation and invocation. It
// never panics and never returns a Go error; every failure is a Response.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp Response) {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx := types.CallContextFrom(ctx)
	callCtx.CallID = ulid.Make().String()
	ctx = types.WithCallContext(ctx, callCtx)

	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "tools.dispatch", trace.WithAttributes(
		attribute.String("tool_name", req.Name),
		attribute.String("call_id", callCtx.CallID),
	))
	defer func() {
		resp.CallID = callCtx.CallID
		d.observe(ctx, span, req.Name, resp, time.Since(start))
		span.End()
	}()

	descriptor, exists := d.registry.Lookup(req.Name)
	if !exists {
		return errorResponse(types.KindUnknownTool, fmt.Sprintf("unknown tool %q", req.Name), map[string]any{"tool": req.Name})
	}

	args := req.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if err := descriptor.ValidateArguments(args); err != nil {
		details := map[string]any{"tool": req.Name, "reason": err.Error()}
		if fields := offendingFields(err); len(fields) > 0 {
			details["fields"] = fields
		}
		return errorResponse(types.KindInvalidArguments, fmt.Sprintf("invalid arguments for tool %q: %v", req.Name, err), details)
	}

	logger.DebugContext(ctx, "Dispatching tool", "tool", req.Name, "call_id", callCtx.CallID)
	return d.invoke(ctx, descriptor, args)
}

type invokeOutcome struct {
	result   any
	err      error
	panicked any
}

func (d *Dispatcher) invoke(ctx context.Context, descriptor types.Descriptor, args map[string]any) Response {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	// The handler gets its own copy so it cannot mutate the caller's map.
	args = maps.Clone(args)

	done := make(chan invokeOutcome, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.ErrorContext(ctx, "Tool handler panicked",
					"tool", descriptor.Name,
					"panic", fmt.Sprint(recovered),
					"stack", string(debug.Stack()),
				)
				done <- invokeOutcome{panicked: recovered}
			}
		}()
		result, err := descriptor.Handler.Invoke(ctx, args)
		done <- invokeOutcome{result: result, err: err}
	}()

	var outcome invokeOutcome
	select {
	case outcome = <-done:
	case <-ctx.Done():
		details := map[string]any{"tool": descriptor.Name}
		message := fmt.Sprintf("tool %q was cancelled", descriptor.Name)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			details["timeout"] = true
			message = fmt.Sprintf("tool %q timed out", descriptor.Name)
		}
		return errorResponse(types.KindExecution, message, details)
	}

	switch {
	case outcome.panicked != nil:
		return errorResponse(types.KindExecution,
			fmt.Sprintf("tool %q failed: %v", descriptor.Name, outcome.panicked),
			map[string]any{"tool": descriptor.Name},
		)
	case outcome.err != nil:
		return executionFailure(descriptor.Name, outcome.err)
	}
	// Every transport encodes the result as JSON.
	if _, err := json.Marshal(outcome.result); err != nil {
		return executionFailure(descriptor.Name, fmt.Errorf("result is not JSON-encodable: %w", err))
	}
	return Response{Status: StatusOK, Result: outcome.result}
}

func executionFailure(tool string, err error) Response {
	details := map[string]any{"tool": tool}
	if toolErr, ok := types.AsToolError(err); ok {
		maps.Copy(details, toolErr.Details)
		kind := toolErr.Kind
		if kind != types.KindInvalidArguments {
			kind = types.KindExecution
		}
		if toolErr.Kind != "" && toolErr.Kind != kind {
			details["reason"] = toolErr.Kind
		}
		return errorResponse(kind, toolErr.Error(), details)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		details["timeout"] = true
	}
	return errorResponse(types.KindExecution, err.Error(), details)
}

func errorResponse(kind, message string, details map[string]any) Response {
	return Response{Status: StatusError, Kind: kind, Message: message, Details: details}
}

func (d *Dispatcher) observe(ctx context.Context, span trace.Span, tool string, resp Response, elapsed time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("tool_name", tool),
		attribute.String("status", resp.Status),
	}
	if resp.Kind != "" {
		attrs = append(attrs, attribute.String("error_kind", resp.Kind))
	}
	options := metric.WithAttributes(attrs...)
	d.invocations.Add(ctx, 1, options)
	d.latency.Record(ctx, elapsed.Seconds(), options)

	span.SetAttributes(attrs...)
	if resp.OK() {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, resp.Kind)
	}

	logger.DebugContext(ctx, "Tool dispatched",
		"tool", tool,
		"call_id", resp.CallID,
		"status", resp.Status,
		"kind", resp.Kind,
		"elapsed", elapsed,
	)
}

var (
	propertyPathPattern    = regexp.MustCompile(`/properties/([^/\s:]+)`)
	missingPropertyPattern = regexp.MustCompile(`missing properties: \[([^\]]*)\]`)
	extraPropertyPattern   = regexp.MustCompile(`additional properties \[([^\]]*)\]`)
	quotedNamePattern      = regexp.MustCompile(`"([^"]+)"`)
)

// offendingFields extracts field names from a schema validation error. It
// returns nil when the message does not name any.
func offendingFields(err error) []string {
	message := err.Error()
	var fields []string
	matches := missingPropertyPattern.FindAllStringSubmatch(message, -1)
	matches = append(matches, extraPropertyPattern.FindAllStringSubmatch(message, -1)...)
	for _, match := range matches {
		quoted := quotedNamePattern.FindAllStringSubmatch(match[1], -1)
		for _, name := range quoted {
			fields = append(fields, name[1])
		}
		if len(quoted) == 0 {
			for _, part := range strings.Fields(match[1]) {
				if name := strings.Trim(part, `"',`); name != "" {
					fields = append(fields, name)
				}
			}
		}
	}
	for _, match := range propertyPathPattern.FindAllStringSubmatch(message, -1) {
		fields = append(fields, match[1])
	}
	slices.Sort(fields)
	return slices.Compact(fields)
}
