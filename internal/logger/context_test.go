package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextRoundTrip(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	stored := zap.New(core)

	ctx := ContextWithLogger(context.Background(), stored)
	FromContext(ctx).Info("hello")

	if logs.Len() != 1 {
		t.Fatalf("expected stored logger to receive the entry, got %d entries", logs.Len())
	}
}

func TestFromContext_AbsentIsNop(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil {
		t.Fatal("expected a usable logger")
	}
	l.Info("dropped") // must not panic
}
