package export

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultInitTimeout        = 5 * time.Second
	DefaultSchemaPollInterval = 100 * time.Millisecond
	DefaultSchemaPollAttempts = 10
	DefaultCompletionTimeout  = 5 * time.Minute
)

// SchemaLookup reports the schema published so far, or nil.
type SchemaLookup func() Schema

// Gate enforces init-before-consume, schema-before-render and a bounded
// overall run. Initialization and completion are one-shot signals; every
// wait is bounded.
type Gate struct {
	initOnce sync.Once
	initDone chan struct{}
	initErr  error

	completeOnce sync.Once
	completeDone chan struct{}
}

// NewGate creates an unsignaled gate.
func NewGate() *Gate {
	return &Gate{
		initDone:     make(chan struct{}),
		completeDone: make(chan struct{}),
	}
}

// SignalInitialized wakes initialization waiters. Only the first signal or
// rejection counts.
func (g *Gate) SignalInitialized() {
	g.resolveInit(nil)
}

// RejectInitialized resolves initialization with err, failing waiters fast.
func (g *Gate) RejectInitialized(err error) {
	g.resolveInit(err)
}

func (g *Gate) resolveInit(err error) {
	g.initOnce.Do(func() {
		g.initErr = err
		close(g.initDone)
	})
}

// Initialized reports whether initialization has been resolved.
func (g *Gate) Initialized() bool {
	select {
	case <-g.initDone:
		return true
	default:
		return false
	}
}

// AwaitInitialized blocks until initialization resolves or timeout elapses.
func (g *Gate) AwaitInitialized(ctx context.Context, timeout time.Duration) error {
	select {
	case <-g.initDone:
		return g.initErr
	default:
	}

	start := time.Now()
	timer := time.NewTimer(nonNegative(timeout))
	defer timer.Stop()

	select {
	case <-g.initDone:
		return g.initErr
	case <-timer.C:
		return NewError(KindInitializationTimeout,
			fmt.Sprintf("initialization not signaled within %s", elapsedSince(start)), nil)
	case <-ctx.Done():
		return NewError(KindCanceled, "canceled while awaiting initialization", ctx.Err())
	}
}

// AwaitSchema looks up the schema, looking again whenever ready fires and on
// each interval tick, for at most attempts ticks. ready may be nil.
func (g *Gate) AwaitSchema(ctx context.Context, lookup SchemaLookup, ready <-chan struct{}, attempts int, interval time.Duration) (Schema, error) {
	if lookup == nil {
		return nil, NewError(KindInternal, "schema lookup is required", nil)
	}
	start := time.Now()
	if schema := lookup(); len(schema) > 0 {
		return schema.Clone(), nil
	}
	if attempts <= 0 || interval <= 0 {
		return nil, NewError(KindSchemaUnavailable, "schema unavailable and polling disabled", nil)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tries := 0; tries < attempts; {
		select {
		case <-ready:
			ready = nil
		case <-ticker.C:
			tries++
		case <-ctx.Done():
			return nil, NewError(KindCanceled, "canceled while awaiting schema", ctx.Err())
		}
		if schema := lookup(); len(schema) > 0 {
			return schema.Clone(), nil
		}
	}

	return nil, NewError(KindSchemaUnavailable,
		fmt.Sprintf("schema unavailable after %d attempts (%s)", attempts, elapsedSince(start)), nil)
}

// SignalCompleted fires the completion signal once.
func (g *Gate) SignalCompleted() {
	g.completeOnce.Do(func() {
		close(g.completeDone)
	})
}

// AwaitCompletion blocks until completion fires or timeout elapses.
func (g *Gate) AwaitCompletion(ctx context.Context, timeout time.Duration) error {
	select {
	case <-g.completeDone:
		return nil
	default:
	}

	start := time.Now()
	timer := time.NewTimer(nonNegative(timeout))
	defer timer.Stop()

	select {
	case <-g.completeDone:
		return nil
	case <-timer.C:
		return NewError(KindProcessingTimeout,
			fmt.Sprintf("processing did not complete within %s", elapsedSince(start)), nil)
	case <-ctx.Done():
		return NewError(KindCanceled, "canceled while awaiting completion", ctx.Err())
	}
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func elapsedSince(start time.Time) time.Duration {
	return time.Since(start).Round(time.Millisecond)
}
