package output

import (
	"context"
	"path/filepath"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"buildlogger/internal/attributes"
	"buildlogger/internal/capture"
	"buildlogger/internal/config"
	"buildlogger/internal/record"
)

// SpanFormatter converts captured invocations into OpenTelemetry spans.
type SpanFormatter struct {
	tracer     trace.Tracer
	attrEval   *attributes.Evaluator
	traceEval  *attributes.TraceIDEvaluator
	parentEval *attributes.ParentIDEvaluator

	// spans maps a recording PID to its latest span context, so later
	// invocations recorded by that process's children parent under it.
	spans map[int]trace.SpanContext
}

// NewSpanFormatter creates a span formatter. Expressions are compiled up
// front; a bad expression fails here, not mid-export.
func NewSpanFormatter(
	tracer trace.Tracer,
	customAttrs []config.CustomAttribute,
	traceIDExpr string,
	parentIDExpr string,
) (*SpanFormatter, error) {
	attrEval, err := attributes.NewEvaluator(customAttrs)
	if err != nil {
		return nil, err
	}
	traceEval, err := attributes.NewTraceIDEvaluator(traceIDExpr)
	if err != nil {
		return nil, err
	}
	parentEval, err := attributes.NewParentIDEvaluator(parentIDExpr)
	if err != nil {
		return nil, err
	}

	return &SpanFormatter{
		tracer:     tracer,
		attrEval:   attrEval,
		traceEval:  traceEval,
		parentEval: parentEval,
		spans:      make(map[int]trace.SpanContext),
	}, nil
}

// Export emits one span per captured invocation, in timestamp order, under
// a single capture root span. Invocations whose recorded parent PID also
// recorded an invocation become children of that invocation's span.
func (f *SpanFormatter) Export(ctx context.Context, store *capture.Store) error {
	invocations := store.All()
	sort.SliceStable(invocations, func(i, j int) bool {
		return invocations[i].Timestamp < invocations[j].Timestamp
	})

	rootCtx, root := f.startRoot(ctx, store, invocations)
	defer f.endRoot(root, invocations)

	for _, inv := range invocations {
		f.exportInvocation(rootCtx, inv)
	}
	return nil
}

// startRoot opens the capture root span covering the whole build.
func (f *SpanFormatter) startRoot(ctx context.Context, store *capture.Store, invocations []*record.Invocation) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindInternal),
	}
	if len(invocations) > 0 {
		opts = append(opts, trace.WithTimestamp(invocations[0].Time()))

		// An externally supplied trace/parent links the capture into a
		// larger CI trace; evaluated against the first invocation.
		if remote, warnings := f.remoteParent(invocations[0]); remote.IsValid() {
			ctx = trace.ContextWithSpanContext(ctx, remote)
			opts = append(opts, trace.WithAttributes(warnings...))
		}
	}

	rootCtx, root := f.tracer.Start(ctx, "build.capture", opts...)
	root.SetAttributes(attribute.Int("capture.invocations", store.Len()))

	for _, issue := range store.Issues() {
		root.AddEvent("capture.issue", trace.WithAttributes(attribute.String("issue", issue)))
	}
	return rootCtx, root
}

func (f *SpanFormatter) endRoot(root trace.Span, invocations []*record.Invocation) {
	if n := len(invocations); n > 0 {
		root.End(trace.WithTimestamp(invocations[n-1].Time()))
		return
	}
	root.End()
}

// exportInvocation creates the span for one invocation.
func (f *SpanFormatter) exportInvocation(rootCtx context.Context, inv *record.Invocation) {
	ctx := rootCtx
	if parent, exists := f.spans[inv.Ppid]; exists && parent.IsValid() {
		ctx = trace.ContextWithSpanContext(context.Background(), parent)
	}

	_, span := f.tracer.Start(ctx, "exec "+filepath.Base(inv.Command()),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(inv.Time()),
	)

	span.SetAttributes(
		attribute.String("process.command", inv.Command()),
		attribute.String("process.command_line", inv.Cmdline()),
		attribute.Int("process.pid", inv.Pid),
		attribute.Int("process.parent_pid", inv.Ppid),
		attribute.String("process.working_directory", inv.Dir),
	)
	span.SetAttributes(f.attrEval.EvaluateCustomAttributes(inv)...)

	// Exec replaces the process image, so the capture has no duration to
	// report; the span marks the instant of interception.
	span.End(trace.WithTimestamp(inv.Time()))

	f.spans[inv.Pid] = span.SpanContext()
}

// remoteParent builds a remote span context from the configured trace-id
// and parent-id expressions. Both must evaluate to something usable for the
// context to be valid.
func (f *SpanFormatter) remoteParent(inv *record.Invocation) (trace.SpanContext, []attribute.KeyValue) {
	traceID, traceWarnings, err := f.traceEval.EvaluateAndValidate(inv)
	if err != nil || !traceID.IsValid() {
		return trace.SpanContext{}, nil
	}

	parentID, parentWarnings, err := f.parentEval.EvaluateAndValidate(inv)
	if err != nil || !parentID.IsValid() {
		return trace.SpanContext{}, nil
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     parentID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return sc, append(traceWarnings, parentWarnings...)
}
