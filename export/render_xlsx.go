package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	excelMaxRows    = 1048576
	defaultDateTime = "yyyy-mm-dd hh:mm:ss"
)

// XLSXConsumer consumes a channel into one sheet of an .xlsx workbook. The
// workbook is assembled in memory and written out when the channel
// completes. It is single use like StreamConsumer.
type XLSXConsumer struct {
	consumerBase

	cfgMu     sync.RWMutex
	cfg       ExportConfig
	state     State
	consuming bool
	started   time.Time

	mu       sync.Mutex
	book     *excelize.File
	out      io.WriteCloser
	sheet    sheetWriter
	styles   xlsxStyles
	schema   Schema
	next     int
	rows     int64
	writeErr error
	closed   bool
}

// NewXLSXConsumer creates an xlsx consumer in the Created state.
func NewXLSXConsumer(opts ...ConsumerOption) *XLSXConsumer {
	return &XLSXConsumer{
		consumerBase: newConsumerBase(opts),
		state:        StateCreated,
	}
}

// Init parses raw configuration and opens the gate. The format key may be
// omitted.
func (c *XLSXConsumer) Init(raw map[string]any) error {
	cfg, err := ParseConfig(raw)
	if err != nil {
		c.rejectInit(err)
		return err
	}
	if _, set := raw[KeyFormat]; !set {
		cfg.Format = FormatXLSX
	}
	return c.Configure(cfg)
}

// Configure validates a typed configuration and opens the gate.
func (c *XLSXConsumer) Configure(cfg ExportConfig) error {
	if cfg.Format != FormatXLSX {
		err := NewError(KindConfiguration, fmt.Sprintf("xlsx consumer cannot write format %q", cfg.Format), nil)
		c.rejectInit(err)
		return err
	}
	if _, err := cfg.Validate(c.dialects); err != nil {
		c.rejectInit(err)
		return err
	}

	c.cfgMu.Lock()
	if c.state != StateCreated {
		c.cfgMu.Unlock()
		return NewError(KindConfiguration, fmt.Sprintf("consumer already %s", c.state), nil)
	}
	c.cfg = cfg
	c.state = StateInitialized
	c.cfgMu.Unlock()

	c.logger.Debugf("configured: sheet=%s filename=%s append=%t has_header=%t", cfg.SheetName, cfg.Filename, cfg.Append, cfg.HasHeader)
	c.gate.SignalInitialized()
	c.logger.Infof("xlsx export initialized")
	return nil
}

func (c *XLSXConsumer) rejectInit(err error) {
	c.setState(StateFailed)
	c.gate.RejectInitialized(err)
	c.logger.Errorf("configuration rejected: %v", err)
}

// State returns the current lifecycle state.
func (c *XLSXConsumer) State() State {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.state
}

// Rows returns the number of rows added to the sheet so far.
func (c *XLSXConsumer) Rows() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

func (c *XLSXConsumer) setState(s State) {
	c.cfgMu.Lock()
	c.state = s
	c.cfgMu.Unlock()
}

func (c *XLSXConsumer) config() ExportConfig {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

// Consume waits for initialization, opens the workbook, waits for the
// schema, then adds every delivered row to the sheet.
func (c *XLSXConsumer) Consume(ctx context.Context, ch Channel) (ExportResult, error) {
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
	cfg := c.config()

	path := ResolveFilename(cfg.Filename, c.now(), cfg.DateFormat)
	if err := c.open(path, cfg); err != nil {
		return ExportResult{}, c.fail(err)
	}
	c.setState(StateAwaitingSchema)
	c.logger.Infof("writing sheet %s of %s", cfg.SheetName, path)

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

	if err := c.writeHeader(schema, cfg); err != nil {
		return ExportResult{}, c.fail(err)
	}

	c.setState(StateWriting)
	ch.OnReceive(c.handle, c.gate.SignalCompleted)

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

// open creates a new workbook, or with append set loads the existing one
// and positions after its last used row.
func (c *XLSXConsumer) open(path string, cfg ExportConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cfg.Append {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			return c.openExistingLocked(path, cfg.SheetName)
		case !errors.Is(err, fs.ErrNotExist):
			return NewError(KindIO, fmt.Sprintf("stat %q", path), err)
		}
		c.logger.Debugf("workbook %s does not exist, creating it", path)
	}

	out, err := c.preparer.Open(path, cfg.Overwrite, cfg.CreateParentDir)
	if err != nil {
		return err
	}
	book := excelize.NewFile()
	if first := book.GetSheetName(0); first != cfg.SheetName {
		book.SetSheetName(first, cfg.SheetName)
		if index, err := book.GetSheetIndex(cfg.SheetName); err != nil || index < 0 {
			_ = book.Close()
			_ = out.Close()
			return NewError(KindConfiguration, fmt.Sprintf("invalid sheet name %q", cfg.SheetName), err)
		}
	}
	stream, err := book.NewStreamWriter(cfg.SheetName)
	if err != nil {
		_ = book.Close()
		_ = out.Close()
		return NewError(KindIO, "create sheet stream", err)
	}
	styles, err := newXLSXStyles(book)
	if err != nil {
		_ = book.Close()
		_ = out.Close()
		return err
	}
	c.book, c.out, c.sheet, c.styles, c.next = book, out, stream, styles, 1
	return nil
}

func (c *XLSXConsumer) openExistingLocked(path, sheet string) error {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return NewError(KindIO, fmt.Sprintf("open workbook %s", path), err)
	}
	index, err := book.GetSheetIndex(sheet)
	if err != nil {
		_ = book.Close()
		return NewError(KindConfiguration, fmt.Sprintf("sheet name %q", sheet), err)
	}
	next := 1
	if index < 0 {
		if _, err := book.NewSheet(sheet); err != nil {
			_ = book.Close()
			return NewError(KindConfiguration, fmt.Sprintf("create sheet %q", sheet), err)
		}
	} else {
		existing, err := book.GetRows(sheet)
		if err != nil {
			_ = book.Close()
			return NewError(KindIO, fmt.Sprintf("read sheet %q", sheet), err)
		}
		next = len(existing) + 1
	}
	styles, err := newXLSXStyles(book)
	if err != nil {
		_ = book.Close()
		return err
	}
	c.logger.Infof("appending to sheet %s of %s at row %d", sheet, path, next)
	c.book, c.sheet, c.styles, c.next = book, appendWriter{book: book, sheet: sheet}, styles, next
	return nil
}

// writeHeader adds the header row when requested and the sheet is empty, so
// appending never repeats it.
func (c *XLSXConsumer) writeHeader(schema Schema, cfg ExportConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.schema = schema
	if !cfg.HasHeader || c.next != 1 {
		return nil
	}
	headers := make([]any, len(schema))
	for i, name := range schema {
		headers[i] = excelize.Cell{StyleID: c.styles.headerID, Value: name}
	}
	if err := c.sheet.SetRow(fmt.Sprintf("A%d", c.next), headers); err != nil {
		return NewError(KindIO, "write header row", err)
	}
	c.next++
	return nil
}

func (c *XLSXConsumer) handle(payload any) {
	delta, ok := c.writePayload(payload)
	if ok && c.progress != nil && delta.Rows > 0 {
		c.progress(delta)
	}
}

func (c *XLSXConsumer) writePayload(payload any) (ProgressDelta, bool) {
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

	var written int64
	for _, row := range rows {
		if len(row) != len(c.schema) {
			c.logger.Warnf("row skipped: row has %d values, schema has %d fields", len(row), len(c.schema))
			continue
		}
		if c.next > excelMaxRows {
			c.abortLocked(NewError(KindIO, fmt.Sprintf("sheet row limit %d reached", excelMaxRows), nil))
			return ProgressDelta{}, false
		}
		cells := make([]any, len(row))
		for i, value := range row {
			cells[i] = c.styles.cell(value)
		}
		if err := c.sheet.SetRow(fmt.Sprintf("A%d", c.next), cells); err != nil {
			c.abortLocked(NewError(KindIO, "write sheet row", err))
			return ProgressDelta{}, false
		}
		c.next++
		written++
	}
	c.rows += written
	c.logger.Debugf("added %d rows (total %d)", written, c.rows)
	return ProgressDelta{Rows: written}, true
}

func (c *XLSXConsumer) checkBatchSchemaLocked(schema Schema) {
	if len(schema) == 0 || schema.Equal(c.schema) {
		return
	}
	c.logger.Warnf("batch schema %v differs from export schema %v; writing against the export schema", schema, c.schema)
}

func (c *XLSXConsumer) abortLocked(err error) {
	c.writeErr = err
	c.logger.Errorf("write failed: %v", err)
	c.gate.SignalCompleted()
}

// finish flushes the sheet and writes the workbook. Appended workbooks are
// replaced through a temporary file in the same directory.
func (c *XLSXConsumer) finish(path string, cfg ExportConfig) (ExportResult, error) {
	c.mu.Lock()
	rows := c.rows
	bytes, checksum, err := c.saveLocked(path)
	c.mu.Unlock()
	if err != nil {
		return ExportResult{}, c.fail(err)
	}

	c.setState(StateCompleted)
	c.logger.Infof("export completed: %d rows written to sheet %s of %s", rows, cfg.SheetName, path)
	return ExportResult{
		Filename: path,
		Format:   FormatXLSX,
		Table:    cfg.SheetName,
		Rows:     rows,
		Bytes:    bytes,
		Checksum: checksum,
		Duration: c.now().Sub(c.started),
	}, nil
}

func (c *XLSXConsumer) saveLocked(path string) (int64, string, error) {
	defer c.closeLocked()

	if err := c.sheet.Flush(); err != nil {
		return 0, "", NewError(KindIO, "flush sheet", err)
	}

	out := c.out
	var tmpPath string
	if out == nil {
		tmp, err := os.CreateTemp(filepath.Dir(path), ".sqlexport-*.xlsx")
		if err != nil {
			return 0, "", NewError(KindIO, "create temporary workbook", err)
		}
		out, tmpPath = tmp, tmp.Name()
	}
	c.out = nil

	cw := newCountingWriter(out)
	_, writeErr := c.book.WriteTo(cw)
	closeErr := out.Close()
	switch {
	case writeErr != nil:
		removeTemp(tmpPath)
		return 0, "", NewError(KindIO, "write workbook", writeErr)
	case closeErr != nil:
		removeTemp(tmpPath)
		return 0, "", NewError(KindIO, "close workbook", closeErr)
	}
	if tmpPath != "" {
		if err := os.Rename(tmpPath, path); err != nil {
			removeTemp(tmpPath)
			return 0, "", NewError(KindIO, fmt.Sprintf("replace workbook %q", path), err)
		}
	}
	return cw.count, cw.checksum(), nil
}

func removeTemp(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

// closeLocked releases the workbook and any open output exactly once.
func (c *XLSXConsumer) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	if c.out != nil {
		_ = c.out.Close()
		c.out = nil
	}
	if c.book != nil {
		if err := c.book.Close(); err != nil {
			c.logger.Warnf("close workbook: %v", err)
		}
	}
}

func (c *XLSXConsumer) fail(err error) error {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()

	c.setState(StateFailed)
	c.logger.Errorf("export failed: %v", err)
	return err
}

// sheetWriter is satisfied by excelize's stream writer and by appendWriter.
type sheetWriter interface {
	SetRow(cell string, values []any, opts ...excelize.RowOpts) error
	Flush() error
}

// appendWriter writes rows into a sheet that already holds data, which the
// stream writer cannot do.
type appendWriter struct {
	book  *excelize.File
	sheet string
}

func (a appendWriter) SetRow(cell string, values []any, _ ...excelize.RowOpts) error {
	col, row, err := excelize.CellNameToCoordinates(cell)
	if err != nil {
		return err
	}
	for i, value := range values {
		name, err := excelize.CoordinatesToCellName(col+i, row)
		if err != nil {
			return err
		}
		styled, ok := value.(excelize.Cell)
		if !ok {
			if err := a.book.SetCellValue(a.sheet, name, value); err != nil {
				return err
			}
			continue
		}
		if err := a.book.SetCellValue(a.sheet, name, styled.Value); err != nil {
			return err
		}
		if styled.StyleID != 0 {
			if err := a.book.SetCellStyle(a.sheet, name, name, styled.StyleID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a appendWriter) Flush() error { return nil }

type xlsxStyles struct {
	headerID   int
	dateTimeID int
}

func newXLSXStyles(book *excelize.File) (xlsxStyles, error) {
	headerID, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return xlsxStyles{}, NewError(KindInternal, "create header style", err)
	}
	format := defaultDateTime
	dateTimeID, err := book.NewStyle(&excelize.Style{CustomNumFmt: &format})
	if err != nil {
		return xlsxStyles{}, NewError(KindInternal, "create date style", err)
	}
	return xlsxStyles{headerID: headerID, dateTimeID: dateTimeID}, nil
}

// cell converts a row value into something excelize stores natively.
func (s xlsxStyles) cell(value any) any {
	switch v := value.(type) {
	case nil:
		return ""
	case time.Time:
		return excelize.Cell{Value: v, StyleID: s.dateTimeID}
	case *time.Time:
		if v == nil {
			return ""
		}
		return excelize.Cell{Value: *v, StyleID: s.dateTimeID}
	case []byte:
		return string(v)
	case bool, string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return v
	default:
		return stringify(value)
	}
}
