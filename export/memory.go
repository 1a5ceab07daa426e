package export

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryChannel is an in-process channel. Payloads published before any
// subscriber registers are buffered and handed to the first subscriber in
// order. Deliveries are serialized.
type MemoryChannel struct {
	mu          sync.Mutex
	schema      Schema
	schemaOnce  sync.Once
	schemaReady chan struct{}
	pending     []any
	subscribers []subscription
	closed      bool
}

type subscription struct {
	onItem     func(payload any)
	onComplete func()
}

// NewMemoryChannel creates an open channel with no schema.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{schemaReady: make(chan struct{})}
}

// SetSchema publishes the schema. Only the first non-empty schema is kept.
func (c *MemoryChannel) SetSchema(schema Schema) {
	if len(schema) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSchemaLocked(schema)
}

func (c *MemoryChannel) setSchemaLocked(schema Schema) {
	c.schemaOnce.Do(func() {
		c.schema = schema.Clone()
		close(c.schemaReady)
	})
}

// Schema returns the published schema or nil.
func (c *MemoryChannel) Schema() Schema {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schema.Clone()
}

// SchemaReady is closed once a schema has been published.
func (c *MemoryChannel) SchemaReady() <-chan struct{} {
	return c.schemaReady
}

// Publish delivers a payload. A Batch carrying a schema publishes it when no
// schema is known yet.
func (c *MemoryChannel) Publish(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return NewError(KindInternal, "publish on closed channel", nil)
	}

	switch p := payload.(type) {
	case Batch:
		if len(p.Schema) > 0 {
			c.setSchemaLocked(p.Schema)
		}
	case *Batch:
		if p != nil && len(p.Schema) > 0 {
			c.setSchemaLocked(p.Schema)
		}
	}

	if len(c.subscribers) == 0 {
		c.pending = append(c.pending, payload)
		return nil
	}
	for _, sub := range c.subscribers {
		sub.onItem(payload)
	}
	return nil
}

// Close marks the end of the stream and fires completion callbacks once.
func (c *MemoryChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if len(c.subscribers) == 0 {
		return
	}
	for _, sub := range c.subscribers {
		if sub.onComplete != nil {
			sub.onComplete()
		}
	}
}

// Subscribe registers a per-item callback.
func (c *MemoryChannel) Subscribe(onItem func(payload any)) {
	c.OnReceive(onItem, nil)
}

// OnReceive registers per-item and completion callbacks.
func (c *MemoryChannel) OnReceive(onItem func(payload any), onComplete func()) {
	if onItem == nil {
		onItem = func(any) {}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := subscription{onItem: onItem, onComplete: onComplete}
	c.subscribers = append(c.subscribers, sub)

	pending := c.pending
	c.pending = nil
	for _, payload := range pending {
		sub.onItem(payload)
	}
	if c.closed && sub.onComplete != nil {
		sub.onComplete()
	}
}

// MemoryTracker stores progress in memory (test/dev only).
type MemoryTracker struct {
	mu      sync.RWMutex
	records map[string]ExportRecord
	counter uint64
	now     func() time.Time
}

// NewMemoryTracker creates an in-memory tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{records: make(map[string]ExportRecord), now: time.Now}
}

// Start creates a new record.
func (t *MemoryTracker) Start(ctx context.Context, record ExportRecord) (string, error) {
	_ = ctx
	if record.ID == "" {
		record.ID = t.nextID()
	}
	if record.State == "" {
		record.State = RunRunning
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = t.now()
	}
	if record.State == RunRunning && record.StartedAt.IsZero() {
		record.StartedAt = record.CreatedAt
	}

	t.mu.Lock()
	t.records[record.ID] = record
	t.mu.Unlock()
	return record.ID, nil
}

// Advance updates counts.
func (t *MemoryTracker) Advance(ctx context.Context, id string, delta ProgressDelta) error {
	return t.update(ctx, id, func(record *ExportRecord) {
		record.Rows += delta.Rows
		record.Bytes += delta.Bytes
	})
}

// Complete marks the export as completed with its final counts.
func (t *MemoryTracker) Complete(ctx context.Context, id string, result ExportResult) error {
	return t.update(ctx, id, func(record *ExportRecord) {
		record.State = RunCompleted
		record.Filename = result.Filename
		record.Rows = result.Rows
		record.Bytes = result.Bytes
		record.Checksum = result.Checksum
		record.CompletedAt = t.now()
	})
}

// Fail records failure state.
func (t *MemoryTracker) Fail(ctx context.Context, id string, err error) error {
	return t.update(ctx, id, func(record *ExportRecord) {
		record.State = RunFailed
		if KindFromError(err) == KindCanceled {
			record.State = RunCanceled
		}
		if err != nil {
			record.Error = err.Error()
		}
		record.CompletedAt = t.now()
	})
}

func (t *MemoryTracker) update(ctx context.Context, id string, fn func(*ExportRecord)) error {
	_ = ctx
	t.mu.Lock()
	defer t.mu.Unlock()
	record, ok := t.records[id]
	if !ok {
		return NewError(KindNotFound, fmt.Sprintf("export %q not found", id), nil)
	}
	fn(&record)
	t.records[id] = record
	return nil
}

// Status returns a record by ID.
func (t *MemoryTracker) Status(ctx context.Context, id string) (ExportRecord, error) {
	_ = ctx
	t.mu.RLock()
	record, ok := t.records[id]
	t.mu.RUnlock()
	if !ok {
		return ExportRecord{}, NewError(KindNotFound, fmt.Sprintf("export %q not found", id), nil)
	}
	return record, nil
}

// List returns records matching a filter, newest first.
func (t *MemoryTracker) List(ctx context.Context, filter ProgressFilter) ([]ExportRecord, error) {
	_ = ctx
	result := []ExportRecord{}

	t.mu.RLock()
	for _, record := range t.records {
		if filter.Table != "" && record.Table != filter.Table {
			continue
		}
		if filter.State != "" && record.State != filter.State {
			continue
		}
		if !filter.Since.IsZero() && record.CreatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && record.CreatedAt.After(filter.Until) {
			continue
		}
		result = append(result, record)
	}
	t.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (t *MemoryTracker) nextID() string {
	id := atomic.AddUint64(&t.counter, 1)
	return fmt.Sprintf("exp-%d", id)
}
