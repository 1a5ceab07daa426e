package exportapi

import (
	"time"

	"github.com/goliatone/go-sqlexport/export"
)

// Response provides a minimal response interface for transport adapters.
type Response interface {
	SetHeader(name, value string)
	WriteHeader(status int)
	Write(data []byte) (int, error)
	WriteJSON(status int, payload any) error
}

// RunResponse describes a finished run.
type RunResponse struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Format     string `json:"format"`
	Dialect    string `json:"dialect,omitempty"`
	Table      string `json:"table"`
	Rows       int64  `json:"rows"`
	Bytes      int64  `json:"bytes"`
	Checksum   string `json:"checksum"`
	DurationMS int64  `json:"duration_ms"`
	StatusURL  string `json:"status_url"`
}

// RecordResponse describes a tracked run.
type RecordResponse struct {
	ID          string     `json:"id"`
	Table       string     `json:"table"`
	Dialect     string     `json:"dialect"`
	Filename    string     `json:"filename,omitempty"`
	State       string     `json:"state"`
	Rows        int64      `json:"rows"`
	Bytes       int64      `json:"bytes"`
	Checksum    string     `json:"checksum,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListResponse wraps tracked runs.
type ListResponse struct {
	Exports []RecordResponse `json:"exports"`
}

// ErrorResponse describes JSON error responses.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains error details.
type ErrorBody struct {
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

func newRunResponse(result export.ExportResult, statusURL string) RunResponse {
	return RunResponse{
		ID:         result.ID,
		Filename:   result.Filename,
		Format:     string(result.Format),
		Dialect:    string(result.Dialect),
		Table:      result.Table,
		Rows:       result.Rows,
		Bytes:      result.Bytes,
		Checksum:   result.Checksum,
		DurationMS: result.Duration.Milliseconds(),
		StatusURL:  statusURL,
	}
}

func newRecordResponse(record export.ExportRecord) RecordResponse {
	return RecordResponse{
		ID:          record.ID,
		Table:       record.Table,
		Dialect:     string(record.Dialect),
		Filename:    record.Filename,
		State:       string(record.State),
		Rows:        record.Rows,
		Bytes:       record.Bytes,
		Checksum:    record.Checksum,
		Error:       record.Error,
		CreatedAt:   record.CreatedAt,
		StartedAt:   timePtr(record.StartedAt),
		CompletedAt: timePtr(record.CompletedAt),
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
