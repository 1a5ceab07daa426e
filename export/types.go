package export

import (
	"context"
	"time"
)

// Schema is the ordered list of field names describing row shape.
// Duplicate names are passed through as-is.
type Schema []string

// Clone returns an independent copy of the schema.
func (s Schema) Clone() Schema {
	if s == nil {
		return nil
	}
	out := make(Schema, len(s))
	copy(out, s)
	return out
}

// Equal reports whether both schemas list the same fields in the same order.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Row is a positionally aligned record. A nil value renders as SQL NULL.
type Row []any

// Batch is a schema plus rows delivered as one unit.
type Batch struct {
	Schema Schema
	Rows   []Row
}

// State is the lifecycle state of a StreamConsumer.
type State string

const (
	StateCreated        State = "created"
	StateInitialized    State = "initialized"
	StateAwaitingSchema State = "awaiting_schema"
	StateWriting        State = "writing"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
)

// Channel is the consumer side of the upstream delivery mechanism.
type Channel interface {
	// Subscribe registers a callback invoked once per delivered payload.
	Subscribe(onItem func(payload any))
	// OnReceive registers a per-item callback and a completion callback
	// invoked exactly once when the producer has no more data.
	OnReceive(onItem func(payload any), onComplete func())
	// Schema returns the published schema or nil when not yet known.
	Schema() Schema
}

// SchemaNotifier is implemented by channels that can signal schema publication.
type SchemaNotifier interface {
	SchemaReady() <-chan struct{}
}

// Publisher is the producer side of a channel.
type Publisher interface {
	SetSchema(schema Schema)
	Publish(payload any) error
	Close()
}

// Source produces payloads into a publisher. The runner closes the
// publisher once Produce returns without error.
type Source interface {
	Produce(ctx context.Context, out Publisher) error
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context, out Publisher) error

func (f SourceFunc) Produce(ctx context.Context, out Publisher) error {
	if f == nil {
		return NewError(KindConfiguration, "source function is nil", nil)
	}
	return f(ctx, out)
}

// ExportResult captures a completed export.
type ExportResult struct {
	ID       string
	Filename string
	Format   OutputFormat
	Dialect  DialectName
	Table    string
	Rows     int64
	Bytes    int64
	Checksum string
	Duration time.Duration
}

// ExportState captures tracked run states.
type ExportState string

const (
	RunQueued    ExportState = "queued"
	RunRunning   ExportState = "running"
	RunCompleted ExportState = "completed"
	RunFailed    ExportState = "failed"
	RunCanceled  ExportState = "canceled"
)

// ExportRecord captures tracker state for an export run.
type ExportRecord struct {
	ID          string
	Table       string
	Dialect     DialectName
	Filename    string
	State       ExportState
	Rows        int64
	Bytes       int64
	Checksum    string
	Error       string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// ProgressDelta indicates progress changes.
type ProgressDelta struct {
	Rows  int64
	Bytes int64
}

// ProgressFilter filters tracker lists.
type ProgressFilter struct {
	Table string
	State ExportState
	Since time.Time
	Until time.Time
}

// ProgressTracker tracks export runs.
type ProgressTracker interface {
	Start(ctx context.Context, record ExportRecord) (string, error)
	Advance(ctx context.Context, id string, delta ProgressDelta) error
	Complete(ctx context.Context, id string, result ExportResult) error
	Fail(ctx context.Context, id string, err error) error
	Status(ctx context.Context, id string) (ExportRecord, error)
	List(ctx context.Context, filter ProgressFilter) ([]ExportRecord, error)
}

// Logger provides logging hooks.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger is a no-op logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

// MetricsEvent describes lifecycle metrics.
type MetricsEvent struct {
	Name      string
	ExportID  string
	Dialect   DialectName
	Table     string
	Rows      int64
	Bytes     int64
	Duration  time.Duration
	ErrorKind ErrorKind
	Timestamp time.Time
}

// MetricsHook emits metrics-friendly lifecycle observations.
type MetricsHook interface {
	Emit(ctx context.Context, evt MetricsEvent) error
}
