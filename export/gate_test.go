package export

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGate_AwaitInitializedSignaled(t *testing.T) {
	gate := NewGate()
	go func() {
		time.Sleep(20 * time.Millisecond)
		gate.SignalInitialized()
	}()
	if err := gate.AwaitInitialized(context.Background(), time.Second); err != nil {
		t.Fatalf("await: %v", err)
	}
	if !gate.Initialized() {
		t.Fatalf("expected gate initialized")
	}
}

func TestGate_AwaitInitializedTimeout(t *testing.T) {
	gate := NewGate()
	start := time.Now()
	err := gate.AwaitInitialized(context.Background(), 50*time.Millisecond)
	if !IsKind(err, KindInitializationTimeout) {
		t.Fatalf("expected initialization_timeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout took too long")
	}
}

func TestGate_RejectInitialized(t *testing.T) {
	gate := NewGate()
	cause := NewError(KindConfiguration, "table_name is required", nil)
	gate.RejectInitialized(cause)
	gate.SignalInitialized()

	err := gate.AwaitInitialized(context.Background(), time.Second)
	if !errors.Is(err, cause) {
		t.Fatalf("expected rejection cause, got %v", err)
	}
}

func TestGate_AwaitInitializedCanceled(t *testing.T) {
	gate := NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := gate.AwaitInitialized(ctx, time.Second)
	if !IsKind(err, KindCanceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestGate_AwaitSchemaImmediate(t *testing.T) {
	gate := NewGate()
	schema, err := gate.AwaitSchema(context.Background(), func() Schema { return Schema{"a"} }, nil, 0, 0)
	if err != nil {
		t.Fatalf("await schema: %v", err)
	}
	if len(schema) != 1 || schema[0] != "a" {
		t.Fatalf("unexpected schema %v", schema)
	}
}

func TestGate_AwaitSchemaLateArrival(t *testing.T) {
	gate := NewGate()
	var calls int32
	lookup := func() Schema {
		if atomic.AddInt32(&calls, 1) < 4 {
			return nil
		}
		return Schema{"id", "name"}
	}
	schema, err := gate.AwaitSchema(context.Background(), lookup, nil, 10, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("await schema: %v", err)
	}
	if len(schema) != 2 {
		t.Fatalf("unexpected schema %v", schema)
	}
}

func TestGate_AwaitSchemaReadySignal(t *testing.T) {
	gate := NewGate()
	ready := make(chan struct{})
	var published atomic.Bool
	lookup := func() Schema {
		if published.Load() {
			return Schema{"id"}
		}
		return nil
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		published.Store(true)
		close(ready)
	}()

	start := time.Now()
	if _, err := gate.AwaitSchema(context.Background(), lookup, ready, 10, time.Second); err != nil {
		t.Fatalf("await schema: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("expected ready signal to short-circuit polling")
	}
}

func TestGate_AwaitSchemaBounded(t *testing.T) {
	const (
		attempts = 5
		interval = 40 * time.Millisecond
	)
	gate := NewGate()
	var lookups int
	start := time.Now()
	_, err := gate.AwaitSchema(context.Background(), func() Schema { lookups++; return nil }, nil, attempts, interval)
	elapsed := time.Since(start)
	if !IsKind(err, KindSchemaUnavailable) {
		t.Fatalf("expected schema_unavailable, got %v", err)
	}
	if lookups != attempts+1 {
		t.Fatalf("expected %d lookups, got %d", attempts+1, lookups)
	}
	if elapsed < attempts*interval-interval/2 {
		t.Fatalf("gave up early after %s", elapsed)
	}
	if limit := (attempts + 1) * interval; elapsed > limit {
		t.Fatalf("schema wait took %s, bound is %s", elapsed, limit)
	}
}

func TestGate_AwaitCompletion(t *testing.T) {
	gate := NewGate()
	go gate.SignalCompleted()
	if err := gate.AwaitCompletion(context.Background(), time.Second); err != nil {
		t.Fatalf("await completion: %v", err)
	}
	gate.SignalCompleted()

	late := NewGate()
	err := late.AwaitCompletion(context.Background(), 20*time.Millisecond)
	if !IsKind(err, KindProcessingTimeout) {
		t.Fatalf("expected processing_timeout, got %v", err)
	}
}
