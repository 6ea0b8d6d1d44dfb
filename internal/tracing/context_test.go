package tracing

import (
	"context"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}
	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithCallID(ctx, "call-1")
	ctx = WithCallerID(ctx, "agent-1")
	ctx = WithRequestID(ctx, "req-1")

	if got := GetTraceID(ctx); got != "trace-1" {
		t.Errorf("Expected trace ID trace-1, got %s", got)
	}
	if got := GetCallID(ctx); got != "call-1" {
		t.Errorf("Expected call ID call-1, got %s", got)
	}
	if got := GetCallerID(ctx); got != "agent-1" {
		t.Errorf("Expected caller ID agent-1, got %s", got)
	}
	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("Expected request ID req-1, got %s", got)
	}
}

func TestGettersOnEmptyContext(t *testing.T) {
	ctx := context.Background()

	if GetTraceID(ctx) != "" || GetCallID(ctx) != "" || GetCallerID(ctx) != "" || GetRequestID(ctx) != "" {
		t.Error("Expected empty values from empty context")
	}
}

func TestFromContextRoundTrip(t *testing.T) {
	tc := &TraceContext{TraceID: "t", CallID: "c", CallerID: "a", RequestID: "r"}
	ctx := NewContext(context.Background(), tc)

	got := FromContext(ctx)
	if *got != *tc {
		t.Errorf("Expected %+v, got %+v", tc, got)
	}
}

func TestNewRequestContext(t *testing.T) {
	ctx := NewRequestContext(context.Background())

	if GetTraceID(ctx) == "" {
		t.Error("Trace ID not set")
	}
}
