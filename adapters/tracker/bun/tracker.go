package trackerbun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-sqlexport/export"
)

// Tracker stores export run history in a Bun-backed database.
type Tracker struct {
	DB          *bun.DB
	Now         func() time.Time
	IDGenerator func() string
}

// NewTracker creates a Bun-backed tracker.
func NewTracker(db *bun.DB) *Tracker {
	return &Tracker{DB: db, Now: time.Now, IDGenerator: uuid.NewString}
}

// CreateSchema creates the run table when missing.
func (t *Tracker) CreateSchema(ctx context.Context) error {
	if t == nil || t.DB == nil {
		return errNotConfigured()
	}
	_, err := t.DB.NewCreateTable().Model((*recordModel)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return export.NewError(export.KindIO, "create export_runs table", err)
	}
	return nil
}

// Start creates a new run record.
func (t *Tracker) Start(ctx context.Context, record export.ExportRecord) (string, error) {
	if t == nil || t.DB == nil {
		return "", errNotConfigured()
	}
	if record.ID == "" {
		record.ID = t.nextID()
	}
	if record.State == "" {
		record.State = export.RunRunning
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = t.now()
	}
	if record.State == export.RunRunning && record.StartedAt.IsZero() {
		record.StartedAt = record.CreatedAt
	}

	model := modelFromRecord(record)
	if _, err := t.DB.NewInsert().Model(&model).Exec(ctx); err != nil {
		return "", export.NewError(export.KindIO, "insert export run", err)
	}
	return record.ID, nil
}

// Advance adds written rows and bytes to a run.
func (t *Tracker) Advance(ctx context.Context, id string, delta export.ProgressDelta) error {
	if t == nil || t.DB == nil {
		return errNotConfigured()
	}
	if id == "" {
		return export.NewError(export.KindConfiguration, "export ID is required", nil)
	}

	res, err := t.DB.NewUpdate().Model((*recordModel)(nil)).
		Set("row_count = row_count + ?", delta.Rows).
		Set("byte_count = byte_count + ?", delta.Bytes).
		Where("id = ?", id).
		Exec(ctx)
	return checkAffected(res, err, id)
}

// Complete marks a run as completed with its final counts.
func (t *Tracker) Complete(ctx context.Context, id string, result export.ExportResult) error {
	if t == nil || t.DB == nil {
		return errNotConfigured()
	}
	if id == "" {
		return export.NewError(export.KindConfiguration, "export ID is required", nil)
	}

	query := t.DB.NewUpdate().Model((*recordModel)(nil)).
		Set("state = ?", string(export.RunCompleted)).
		Set("row_count = ?", result.Rows).
		Set("byte_count = ?", result.Bytes).
		Set("checksum = ?", result.Checksum).
		Set("completed_at = COALESCE(completed_at, ?)", t.now()).
		Where("id = ?", id)
	if result.Filename != "" {
		query = query.Set("filename = ?", result.Filename)
	}
	res, err := query.Exec(ctx)
	return checkAffected(res, err, id)
}

// Fail marks a run as failed, or canceled when err is a cancellation.
func (t *Tracker) Fail(ctx context.Context, id string, err error) error {
	if t == nil || t.DB == nil {
		return errNotConfigured()
	}
	if id == "" {
		return export.NewError(export.KindConfiguration, "export ID is required", nil)
	}

	state := export.RunFailed
	if export.KindFromError(err) == export.KindCanceled {
		state = export.RunCanceled
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	res, uerr := t.DB.NewUpdate().Model((*recordModel)(nil)).
		Set("state = ?", string(state)).
		Set("error = ?", msg).
		Set("completed_at = COALESCE(completed_at, ?)", t.now()).
		Where("id = ?", id).
		Exec(ctx)
	return checkAffected(res, uerr, id)
}

// Status returns a record by ID.
func (t *Tracker) Status(ctx context.Context, id string) (export.ExportRecord, error) {
	if t == nil || t.DB == nil {
		return export.ExportRecord{}, errNotConfigured()
	}
	if id == "" {
		return export.ExportRecord{}, export.NewError(export.KindConfiguration, "export ID is required", nil)
	}

	model := new(recordModel)
	err := t.DB.NewSelect().Model(model).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return export.ExportRecord{}, export.NewError(export.KindNotFound, fmt.Sprintf("export %q not found", id), nil)
		}
		return export.ExportRecord{}, export.NewError(export.KindIO, "select export run", err)
	}
	return model.toRecord(), nil
}

// List returns records matching a filter, newest first.
func (t *Tracker) List(ctx context.Context, filter export.ProgressFilter) ([]export.ExportRecord, error) {
	if t == nil || t.DB == nil {
		return nil, errNotConfigured()
	}

	models := make([]recordModel, 0)
	query := t.DB.NewSelect().Model(&models)
	if filter.Table != "" {
		query = query.Where("table_name = ?", filter.Table)
	}
	if filter.State != "" {
		query = query.Where("state = ?", string(filter.State))
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at <= ?", filter.Until)
	}
	query = query.Order("created_at DESC")

	if err := query.Scan(ctx); err != nil {
		return nil, export.NewError(export.KindIO, "list export runs", err)
	}

	records := make([]export.ExportRecord, 0, len(models))
	for _, model := range models {
		records = append(records, model.toRecord())
	}
	return records, nil
}

type recordModel struct {
	bun.BaseModel `bun:"table:export_runs,alias:export_runs"`

	ID          string    `bun:",pk"`
	TableName   string    `bun:"table_name,notnull"`
	Dialect     string    `bun:"dialect,notnull"`
	Filename    string    `bun:"filename"`
	State       string    `bun:"state,notnull"`
	Rows        int64     `bun:"row_count"`
	Bytes       int64     `bun:"byte_count"`
	Checksum    string    `bun:"checksum"`
	Error       string    `bun:"error"`
	CreatedAt   time.Time `bun:"created_at"`
	StartedAt   time.Time `bun:"started_at,nullzero"`
	CompletedAt time.Time `bun:"completed_at,nullzero"`
}

func modelFromRecord(record export.ExportRecord) recordModel {
	return recordModel{
		ID:          record.ID,
		TableName:   record.Table,
		Dialect:     string(record.Dialect),
		Filename:    record.Filename,
		State:       string(record.State),
		Rows:        record.Rows,
		Bytes:       record.Bytes,
		Checksum:    record.Checksum,
		Error:       record.Error,
		CreatedAt:   record.CreatedAt,
		StartedAt:   record.StartedAt,
		CompletedAt: record.CompletedAt,
	}
}

func (m recordModel) toRecord() export.ExportRecord {
	return export.ExportRecord{
		ID:          m.ID,
		Table:       m.TableName,
		Dialect:     export.DialectName(m.Dialect),
		Filename:    m.Filename,
		State:       export.ExportState(m.State),
		Rows:        m.Rows,
		Bytes:       m.Bytes,
		Checksum:    m.Checksum,
		Error:       m.Error,
		CreatedAt:   m.CreatedAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
}

func checkAffected(res sql.Result, err error, id string) error {
	if err != nil {
		return export.NewError(export.KindIO, "update export run", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return export.NewError(export.KindNotFound, fmt.Sprintf("export %q not found", id), nil)
	}
	return nil
}

func errNotConfigured() error {
	return export.NewError(export.KindConfiguration, "tracker database not configured", nil)
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Tracker) nextID() string {
	if t.IDGenerator != nil {
		return t.IDGenerator()
	}
	return uuid.NewString()
}
