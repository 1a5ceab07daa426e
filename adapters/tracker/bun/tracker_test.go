package trackerbun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/goliatone/go-sqlexport/export"
)

func TestTracker_StartStatusList(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t)

	id, err := tracker.Start(ctx, export.ExportRecord{
		Table:    "users",
		Dialect:  export.DialectMySQL,
		Filename: "/tmp/users.sql",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if id == "" {
		t.Fatalf("expected record id")
	}

	got, err := tracker.Status(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.Table != "users" || got.Dialect != export.DialectMySQL {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.State != export.RunRunning {
		t.Fatalf("expected running, got %s", got.State)
	}
	if got.StartedAt.IsZero() {
		t.Fatalf("expected started_at")
	}

	if _, err := tracker.Start(ctx, export.ExportRecord{Table: "orders", Dialect: export.DialectPostgreSQL}); err != nil {
		t.Fatalf("start second: %v", err)
	}

	list, err := tracker.List(ctx, export.ProgressFilter{Table: "users"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("expected one users record, got %+v", list)
	}

	all, err := tracker.List(ctx, export.ProgressFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}
	if all[0].Table != "orders" {
		t.Fatalf("expected newest first, got %s", all[0].Table)
	}
}

func TestTracker_AdvanceAndComplete(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t)

	id, err := tracker.Start(ctx, export.ExportRecord{Table: "users", Dialect: export.DialectMySQL})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := tracker.Advance(ctx, id, export.ProgressDelta{Rows: 1, Bytes: 10}); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}

	mid, err := tracker.Status(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if mid.Rows != 3 || mid.Bytes != 30 {
		t.Fatalf("expected 3 rows/30 bytes, got %d/%d", mid.Rows, mid.Bytes)
	}

	err = tracker.Complete(ctx, id, export.ExportResult{
		Filename: "/tmp/users.sql",
		Rows:     3,
		Bytes:    120,
		Checksum: "abc123",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := tracker.Status(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.State != export.RunCompleted {
		t.Fatalf("expected completed, got %s", got.State)
	}
	if got.Bytes != 120 || got.Checksum != "abc123" || got.Filename != "/tmp/users.sql" {
		t.Fatalf("unexpected result fields %+v", got)
	}
	if got.CompletedAt.IsZero() {
		t.Fatalf("expected completed_at")
	}

	completed, err := tracker.List(ctx, export.ProgressFilter{State: export.RunCompleted})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(completed) != 1 {
		t.Fatalf("expected one completed record, got %d", len(completed))
	}
}

func TestTracker_FailRecordsErrorAndCancel(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t)

	failedID, _ := tracker.Start(ctx, export.ExportRecord{Table: "users", Dialect: export.DialectMySQL})
	canceledID, _ := tracker.Start(ctx, export.ExportRecord{Table: "users", Dialect: export.DialectMySQL})

	if err := tracker.Fail(ctx, failedID, errors.New("disk full")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := tracker.Fail(ctx, canceledID, context.Canceled); err != nil {
		t.Fatalf("fail canceled: %v", err)
	}

	failed, _ := tracker.Status(ctx, failedID)
	if failed.State != export.RunFailed || failed.Error != "disk full" {
		t.Fatalf("unexpected failed record %+v", failed)
	}
	canceled, _ := tracker.Status(ctx, canceledID)
	if canceled.State != export.RunCanceled {
		t.Fatalf("expected canceled, got %s", canceled.State)
	}
}

func TestTracker_TimeWindow(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := tracker.Start(ctx, export.ExportRecord{
			Table:     "users",
			Dialect:   export.DialectMySQL,
			CreatedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("start: %v", err)
		}
	}

	list, err := tracker.List(ctx, export.ProgressFilter{
		Since: base.Add(12 * time.Hour),
		Until: base.Add(36 * time.Hour),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one record in window, got %d", len(list))
	}
}

func TestTracker_NotFound(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t)

	if _, err := tracker.Status(ctx, "missing"); !export.IsKind(err, export.KindNotFound) {
		t.Fatalf("expected not found on status, got %v", err)
	}
	if err := tracker.Advance(ctx, "missing", export.ProgressDelta{Rows: 1}); !export.IsKind(err, export.KindNotFound) {
		t.Fatalf("expected not found on advance, got %v", err)
	}
	if err := tracker.Complete(ctx, "missing", export.ExportResult{}); !export.IsKind(err, export.KindNotFound) {
		t.Fatalf("expected not found on complete, got %v", err)
	}
}

func TestTracker_NotConfigured(t *testing.T) {
	tracker := &Tracker{}
	if _, err := tracker.Start(context.Background(), export.ExportRecord{}); !export.IsKind(err, export.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})

	tracker := NewTracker(db)
	clock := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tracker.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	if err := tracker.CreateSchema(context.Background()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return tracker
}
