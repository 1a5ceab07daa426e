package query

import (
	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlexport/export"
)

// ExportStatus requests a single run record.
type ExportStatus struct {
	ExportID string
}

func (ExportStatus) Type() string { return "sqlexport:status" }

func (msg ExportStatus) Validate() error {
	if msg.ExportID == "" {
		return errors.New("export ID is required", errors.CategoryValidation).
			WithTextCode("EXPORT_ID_REQUIRED")
	}
	return nil
}

// ExportHistory requests run records matching a filter.
type ExportHistory struct {
	Filter export.ProgressFilter
	// Limit caps the number of records returned; 0 means no cap.
	Limit int
}

func (ExportHistory) Type() string { return "sqlexport:history" }

func (msg ExportHistory) Validate() error {
	if msg.Limit < 0 {
		return errors.New("limit must not be negative", errors.CategoryValidation).
			WithTextCode("LIMIT_INVALID")
	}
	if !msg.Filter.Since.IsZero() && !msg.Filter.Until.IsZero() && msg.Filter.Until.Before(msg.Filter.Since) {
		return errors.New("until must not be before since", errors.CategoryValidation).
			WithTextCode("WINDOW_INVALID")
	}
	return nil
}
