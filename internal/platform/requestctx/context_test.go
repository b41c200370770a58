package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestAnnotationsRequireSet(t *testing.T) {
	ctx := context.Background()
	Annotate(ctx, OrderID, "ord-1")
	if got := Annotations(ctx); len(got) != 0 {
		t.Fatalf("expected no annotations without a set, got %v", got)
	}

	ctx = WithAnnotations(ctx)
	Annotate(ctx, OrderID, "ord-1")
	Annotate(ctx, CartLineID, "line-1")
	Annotate(ctx, OrderID, "ord-2")
	Annotate(ctx, ProductID, "")

	// Nested handlers share the outer set.
	Annotate(WithAnnotations(ctx), ProductID, "p-1")

	got := Annotations(ctx)
	want := []Annotation{{CartLineID, "line-1"}, {OrderID, "ord-2"}, {ProductID, "p-1"}}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("annotation %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestLoggerFallsBackToNoop(t *testing.T) {
	if Logger(context.Background()) != NoopLogger() {
		t.Fatalf("expected the no-op logger")
	}
	logger := zap.NewExample()
	if Logger(WithLogger(context.Background(), logger)) != logger {
		t.Fatalf("expected the stored logger")
	}
	if Logger(WithLogger(context.Background(), nil)) != NoopLogger() {
		t.Fatalf("a nil logger must store the no-op logger")
	}
	if TraceID(context.Background()) != "" {
		t.Fatalf("expected no trace id")
	}
}
