// Package requestctx carries per-request state between middleware, handlers and services: the
// scoped logger, the inbound trace and the order-domain identifiers a request touched.
package requestctx

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type (
	loggerKey      struct{}
	traceKey       struct{}
	annotationsKey struct{}
)

// Annotation keys recorded by handlers once the affected resource is known.
const (
	OrderID    = "order_id"
	CartLineID = "cart_line_id"
	ProductID  = "product_id"
)

var noopLogger = zap.NewNop()

// TraceInfo is the trace the request belongs to.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores logger on ctx. A nil logger stores the no-op logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the request logger, or the no-op logger outside a request.
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
			return logger
		}
	}
	return noopLogger
}

// NoopLogger is the logger Logger falls back to.
func NoopLogger() *zap.Logger { return noopLogger }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey{}, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

// TraceID is the trace id of ctx, or "".
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

type annotations struct {
	mu     sync.Mutex
	values map[string]string
}

// WithAnnotations attaches an empty annotation set that Annotate fills in while the request runs.
// An existing set is kept.
func WithAnnotations(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Value(annotationsKey{}).(*annotations); ok {
		return ctx
	}
	return context.WithValue(ctx, annotationsKey{}, &annotations{values: map[string]string{}})
}

// Annotate records key=value for the request log. It is a no-op without WithAnnotations or for
// an empty value; a later value for the same key wins.
func Annotate(ctx context.Context, key, value string) {
	if ctx == nil || key == "" || value == "" {
		return
	}
	set, ok := ctx.Value(annotationsKey{}).(*annotations)
	if !ok {
		return
	}
	set.mu.Lock()
	set.values[key] = value
	set.mu.Unlock()
}

// Annotation is one recorded key/value pair.
type Annotation struct {
	Key   string
	Value string
}

// Annotations returns the recorded pairs sorted by key.
func Annotations(ctx context.Context) []Annotation {
	if ctx == nil {
		return nil
	}
	set, ok := ctx.Value(annotationsKey{}).(*annotations)
	if !ok {
		return nil
	}
	set.mu.Lock()
	out := make([]Annotation, 0, len(set.values))
	for k, v := range set.values {
		out = append(out, Annotation{Key: k, Value: v})
	}
	set.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
