package export

import (
	"context"
	"errors"

	errorslib "github.com/goliatone/go-errors"
)

// ErrorKind defines export error kinds.
type ErrorKind string

const (
	KindConfiguration         ErrorKind = "configuration"
	KindMissingParentDir      ErrorKind = "missing_parent_directory"
	KindFileExists            ErrorKind = "file_exists"
	KindInitializationTimeout ErrorKind = "initialization_timeout"
	KindSchemaUnavailable     ErrorKind = "schema_unavailable"
	KindProcessingTimeout     ErrorKind = "processing_timeout"
	KindIO                    ErrorKind = "io"
	KindUnrecognizedPayload   ErrorKind = "unrecognized_payload"
	KindNotFound              ErrorKind = "not_found"
	KindCanceled              ErrorKind = "canceled"
	KindInternal              ErrorKind = "internal"
)

// ExportError wraps errors with a kind.
type ExportError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *ExportError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// NewError creates a new export error.
func NewError(kind ErrorKind, msg string, err error) *ExportError {
	return &ExportError{Kind: kind, Msg: msg, Err: err}
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindFromError(err) == kind
}

// IsTimeout reports whether err is one of the bounded-wait failures.
func IsTimeout(err error) bool {
	switch KindFromError(err) {
	case KindInitializationTimeout, KindSchemaUnavailable, KindProcessingTimeout:
		return true
	}
	return false
}

// AsGoError maps an error into a go-errors error.
func AsGoError(err error) *errorslib.Error {
	if err == nil {
		return nil
	}

	var ge *errorslib.Error
	if errors.As(err, &ge) {
		return ge
	}

	kind := KindFromError(err)
	msg := err.Error()

	var exportErr *ExportError
	if errors.As(err, &exportErr) && exportErr.Msg != "" {
		msg = exportErr.Error()
	}

	switch kind {
	case KindConfiguration:
		return errorslib.New(msg, errorslib.CategoryValidation).WithTextCode(string(kind))
	case KindMissingParentDir, KindFileExists:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode(string(kind))
	case KindInitializationTimeout, KindSchemaUnavailable, KindProcessingTimeout:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode(string(kind))
	case KindCanceled:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode(string(kind))
	case KindIO:
		return errorslib.New(msg, errorslib.CategoryExternal).WithTextCode(string(kind))
	case KindNotFound:
		return errorslib.New(msg, errorslib.CategoryNotFound).WithTextCode(string(kind))
	default:
		return errorslib.New(msg, errorslib.CategoryInternal).WithTextCode(string(KindInternal))
	}
}

// KindFromError maps an error to its export error kind.
func KindFromError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var exportErr *ExportError
	if errors.As(err, &exportErr) {
		return exportErr.Kind
	}

	var ge *errorslib.Error
	if errors.As(err, &ge) && ge.TextCode != "" {
		return ErrorKind(ge.TextCode)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindProcessingTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	return KindInternal
}
