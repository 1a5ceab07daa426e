package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// ConsumerOption configures a consumer.
type ConsumerOption func(*consumerBase)

// WithLogger sets the consumer logger.
func WithLogger(l Logger) ConsumerOption {
	return func(c *consumerBase) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDialects sets the registry used to resolve the configured dialect.
func WithDialects(reg *DialectRegistry) ConsumerOption {
	return func(c *consumerBase) {
		if reg != nil {
			c.dialects = reg
		}
	}
}

// WithClock overrides the clock used for filename dates and durations.
func WithClock(now func() time.Time) ConsumerOption {
	return func(c *consumerBase) {
		if now != nil {
			c.now = now
		}
	}
}

// WithInitTimeout bounds the wait for Init when Consume starts first.
func WithInitTimeout(d time.Duration) ConsumerOption {
	return func(c *consumerBase) {
		c.initTimeout = d
	}
}

// WithProgress registers a hook called after each written payload.
func WithProgress(fn func(ProgressDelta)) ConsumerOption {
	return func(c *consumerBase) {
		c.progress = fn
	}
}

// WithPreparer overrides how the output file is opened.
func WithPreparer(p OutputOpener) ConsumerOption {
	return func(c *consumerBase) {
		if p != nil {
			c.preparer = p
		}
	}
}

// Consumer drains one channel into one output file.
type Consumer interface {
	Configure(cfg ExportConfig) error
	Consume(ctx context.Context, ch Channel) (ExportResult, error)
}

// NewConsumer returns the consumer that writes cfg.Format.
func NewConsumer(format OutputFormat, opts ...ConsumerOption) (Consumer, error) {
	switch format {
	case FormatSQL, "":
		return NewStreamConsumer(opts...), nil
	case FormatXLSX:
		return NewXLSXConsumer(opts...), nil
	default:
		return nil, NewError(KindConfiguration, fmt.Sprintf("unsupported output format %q", format), nil)
	}
}

// consumerBase holds the collaborators every consumer shares.
type consumerBase struct {
	dialects    *DialectRegistry
	preparer    OutputOpener
	gate        *Gate
	logger      Logger
	now         func() time.Time
	initTimeout time.Duration
	progress    func(ProgressDelta)
}

func newConsumerBase(opts []ConsumerOption) consumerBase {
	b := consumerBase{
		dialects:    DefaultDialects(),
		gate:        NewGate(),
		logger:      NopLogger{},
		now:         time.Now,
		initTimeout: DefaultInitTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	switch p := b.preparer.(type) {
	case nil:
		b.preparer = FilePreparer{Logger: b.logger}
	case FilePreparer:
		if p.Logger == nil {
			p.Logger = b.logger
			b.preparer = p
		}
	}
	return b
}

// StreamConsumer consumes a channel and writes a SQL file. It is single use:
// Init once, Consume once.
type StreamConsumer struct {
	consumerBase

	cfgMu     sync.RWMutex
	cfg       ExportConfig
	gen       SQLGenerator
	state     State
	consuming bool
	started   time.Time

	// mu guards the output and everything written through it.
	mu            sync.Mutex
	file          io.WriteCloser
	cw            *countingWriter
	w             *bufio.Writer
	schema        Schema
	headerWritten bool
	rows          int64
	writeErr      error
	closed        bool
}

// NewStreamConsumer creates a consumer in the Created state.
func NewStreamConsumer(opts ...ConsumerOption) *StreamConsumer {
	return &StreamConsumer{
		consumerBase: newConsumerBase(opts),
		state:        StateCreated,
	}
}

// Init parses and validates raw configuration and opens the gate.
func (c *StreamConsumer) Init(raw map[string]any) error {
	cfg, err := ParseConfig(raw)
	if err != nil {
		c.rejectInit(err)
		return err
	}
	return c.Configure(cfg)
}

// Configure validates a typed configuration and opens the gate.
func (c *StreamConsumer) Configure(cfg ExportConfig) error {
	if cfg.Format != FormatSQL && cfg.Format != "" {
		err := NewError(KindConfiguration, fmt.Sprintf("sql consumer cannot write format %q", cfg.Format), nil)
		c.rejectInit(err)
		return err
	}
	d, err := cfg.Validate(c.dialects)
	if err != nil {
		c.rejectInit(err)
		return err
	}
	cfg.Dialect = d.Name
	cfg.Format = FormatSQL

	c.cfgMu.Lock()
	if c.state != StateCreated {
		c.cfgMu.Unlock()
		return NewError(KindConfiguration, fmt.Sprintf("consumer already %s", c.state), nil)
	}
	c.cfg = cfg
	c.gen = NewSQLGenerator(d)
	c.state = StateInitialized
	c.cfgMu.Unlock()

	c.logger.Debugf("configured: dialect=%s table=%s filename=%s create_table=%t overwrite=%t create_parent_dir=%t",
		cfg.Dialect, cfg.TableName, cfg.Filename, cfg.CreateTable, cfg.Overwrite, cfg.CreateParentDir)
	c.gate.SignalInitialized()
	c.logger.Infof("sql file export initialized")
	return nil
}

func (c *StreamConsumer) rejectInit(err error) {
	c.setState(StateFailed)
	c.gate.RejectInitialized(err)
	c.logger.Errorf("configuration rejected: %v", err)
}

// State returns the current lifecycle state.
func (c *StreamConsumer) State() State {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.state
}

// Rows returns the number of rows written so far.
func (c *StreamConsumer) Rows() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

func (c *StreamConsumer) setState(s State) {
	c.cfgMu.Lock()
	c.state = s
	c.cfgMu.Unlock()
}

func (c *StreamConsumer) config() (ExportConfig, SQLGenerator) {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg, c.gen
}

// Consume waits for initialization, prepares the output file, waits for the
// schema, then writes every delivered payload until the channel completes.
func (c *StreamConsumer) Consume(ctx context.Context, ch Channel) (ExportResult, error) {
	c.cfgMu.Lock()
	if c.consuming {
		c.cfgMu.Unlock()
		return ExportResult{}, NewError(KindConfiguration, "consumer already consumed a channel", nil)
	}
	c.consuming = true
	c.cfgMu.Unlock()

	if ch == nil {
		return ExportResult{}, c.fail(NewError(KindConfiguration, "input channel is required", nil))
	}
	c.started = c.now()

	if err := c.gate.AwaitInitialized(ctx, c.initTimeout); err != nil {
		return ExportResult{}, c.fail(err)
	}
	cfg, gen := c.config()

	path := ResolveFilename(cfg.Filename, c.now(), cfg.DateFormat)
	file, err := c.preparer.Open(path, cfg.Overwrite, cfg.CreateParentDir)
	if err != nil {
		return ExportResult{}, c.fail(err)
	}
	c.mu.Lock()
	c.file = file
	c.cw = newCountingWriter(file)
	c.w = bufio.NewWriter(c.cw)
	c.mu.Unlock()
	c.setState(StateAwaitingSchema)
	c.logger.Infof("writing %s sql file %s", cfg.Dialect, path)

	var ready <-chan struct{}
	if n, ok := ch.(SchemaNotifier); ok {
		ready = n.SchemaReady()
	}
	lookup := func() Schema {
		if len(cfg.Fields) > 0 {
			return cfg.Fields
		}
		return ch.Schema()
	}
	schema, err := c.gate.AwaitSchema(ctx, lookup, ready, cfg.SchemaPollAttempts, cfg.SchemaPollInterval)
	if err != nil {
		return ExportResult{}, c.fail(err)
	}
	c.logger.Debugf("schema received: %d fields", len(schema))

	if err := c.writeHeader(schema, cfg, gen); err != nil {
		return ExportResult{}, c.fail(err)
	}

	c.setState(StateWriting)
	ch.OnReceive(c.handle, c.complete)

	if err := c.gate.AwaitCompletion(ctx, cfg.CompletionTimeout); err != nil {
		return ExportResult{}, c.fail(err)
	}

	c.mu.Lock()
	writeErr := c.writeErr
	c.mu.Unlock()
	if writeErr != nil {
		return ExportResult{}, c.fail(writeErr)
	}

	return c.finish(path, cfg)
}

func (c *StreamConsumer) writeHeader(schema Schema, cfg ExportConfig, gen SQLGenerator) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.schema = schema
	if c.headerWritten || !cfg.CreateTable {
		return nil
	}
	if _, err := c.w.WriteString(gen.CreateTable(schema, cfg.TableName, true) + "\n\n"); err != nil {
		return NewError(KindIO, "write create table statement", err)
	}
	if err := c.w.Flush(); err != nil {
		return NewError(KindIO, "flush create table statement", err)
	}
	c.headerWritten = true
	c.logger.Infof("create table statement written")
	return nil
}

// handle renders one payload. Deliveries are serialized so statements never
// interleave and the counter only advances for flushed rows.
func (c *StreamConsumer) handle(payload any) {
	delta, ok := c.writePayload(payload)
	if ok && c.progress != nil && delta.Rows > 0 {
		c.progress(delta)
	}
}

func (c *StreamConsumer) writePayload(payload any) (ProgressDelta, bool) {
	cfg, gen := c.config()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.writeErr != nil {
		return ProgressDelta{}, false
	}

	var rows []Row
	switch p := payload.(type) {
	case Batch:
		c.checkBatchSchemaLocked(p.Schema)
		rows = p.Rows
	case *Batch:
		if p == nil {
			c.logger.Warnf("unrecognized payload: nil batch")
			return ProgressDelta{}, false
		}
		c.checkBatchSchemaLocked(p.Schema)
		rows = p.Rows
	case Row:
		rows = []Row{p}
	default:
		c.logger.Warnf("unrecognized payload %T, skipped", payload)
		return ProgressDelta{}, false
	}

	before := c.cw.count
	var written int64
	for _, row := range rows {
		stmt, err := gen.Insert(row, c.schema, cfg.TableName)
		if err != nil {
			c.logger.Warnf("row skipped: %v", err)
			continue
		}
		if _, err := c.w.WriteString(stmt + "\n"); err != nil {
			c.abortLocked(NewError(KindIO, "write insert statement", err))
			return ProgressDelta{}, false
		}
		written++
	}
	if err := c.w.Flush(); err != nil {
		c.abortLocked(NewError(KindIO, "flush insert statements", err))
		return ProgressDelta{}, false
	}
	c.rows += written
	c.logger.Debugf("wrote %d rows (total %d)", written, c.rows)
	return ProgressDelta{Rows: written, Bytes: c.cw.count - before}, true
}

// checkBatchSchemaLocked warns when a batch declares a schema other than the
// one the file was started with. Rows are still rendered against the latter.
func (c *StreamConsumer) checkBatchSchemaLocked(schema Schema) {
	if len(schema) == 0 || schema.Equal(c.schema) {
		return
	}
	c.logger.Warnf("batch schema %v differs from export schema %v; rendering against the export schema", schema, c.schema)
}

func (c *StreamConsumer) abortLocked(err error) {
	c.writeErr = err
	c.logger.Errorf("write failed: %v", err)
	c.gate.SignalCompleted()
}

func (c *StreamConsumer) complete() {
	c.gate.SignalCompleted()
}

func (c *StreamConsumer) finish(path string, cfg ExportConfig) (ExportResult, error) {
	c.mu.Lock()
	rows := c.rows
	err := c.closeLocked()
	var bytes int64
	var checksum string
	if c.cw != nil {
		bytes = c.cw.count
		checksum = c.cw.checksum()
	}
	c.mu.Unlock()
	if err != nil {
		return ExportResult{}, c.fail(err)
	}

	c.setState(StateCompleted)
	c.logger.Infof("export completed: %d rows written to %s", rows, path)
	return ExportResult{
		Filename: path,
		Format:   FormatSQL,
		Dialect:  cfg.Dialect,
		Table:    cfg.TableName,
		Rows:     rows,
		Bytes:    bytes,
		Checksum: checksum,
		Duration: c.now().Sub(c.started),
	}, nil
}

// closeLocked flushes and closes the file exactly once.
func (c *StreamConsumer) closeLocked() error {
	if c.closed || c.file == nil {
		c.closed = true
		return nil
	}
	c.closed = true

	var flushErr error
	if c.w != nil && c.writeErr == nil {
		flushErr = c.w.Flush()
	}
	closeErr := c.file.Close()
	switch {
	case flushErr != nil:
		return NewError(KindIO, "flush output file", flushErr)
	case closeErr != nil:
		return NewError(KindIO, "close output file", closeErr)
	}
	return nil
}

func (c *StreamConsumer) fail(err error) error {
	c.mu.Lock()
	if closeErr := c.closeLocked(); closeErr != nil {
		c.logger.Errorf("close after failure: %v", closeErr)
	}
	c.mu.Unlock()

	c.setState(StateFailed)
	c.logger.Errorf("export failed: %v", err)
	return err
}
