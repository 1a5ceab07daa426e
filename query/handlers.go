package query

import (
	"context"

	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlexport/export"
)

// ExportStatusHandler returns a single run record.
type ExportStatusHandler struct {
	Tracker export.ProgressTracker
}

func NewExportStatusHandler(tracker export.ProgressTracker) *ExportStatusHandler {
	return &ExportStatusHandler{Tracker: tracker}
}

func (h *ExportStatusHandler) Query(ctx context.Context, msg ExportStatus) (export.ExportRecord, error) {
	if h == nil || h.Tracker == nil {
		return export.ExportRecord{}, errors.New("export tracker is required", errors.CategoryInternal).
			WithTextCode("TRACKER_REQUIRED")
	}
	if err := msg.Validate(); err != nil {
		return export.ExportRecord{}, err
	}
	record, err := h.Tracker.Status(ctx, msg.ExportID)
	if err != nil {
		return export.ExportRecord{}, export.AsGoError(err)
	}
	return record, nil
}

// ExportHistoryHandler returns run history, newest first.
type ExportHistoryHandler struct {
	Tracker export.ProgressTracker
}

func NewExportHistoryHandler(tracker export.ProgressTracker) *ExportHistoryHandler {
	return &ExportHistoryHandler{Tracker: tracker}
}

func (h *ExportHistoryHandler) Query(ctx context.Context, msg ExportHistory) ([]export.ExportRecord, error) {
	if h == nil || h.Tracker == nil {
		return nil, errors.New("export tracker is required", errors.CategoryInternal).
			WithTextCode("TRACKER_REQUIRED")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	records, err := h.Tracker.List(ctx, msg.Filter)
	if err != nil {
		return nil, export.AsGoError(err)
	}
	if msg.Limit > 0 && len(records) > msg.Limit {
		records = records[:msg.Limit]
	}
	return records, nil
}
