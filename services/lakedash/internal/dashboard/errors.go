package dashboard

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Kind classifies a pipeline failure. Its string form is the error name
// reported to RPC clients.
type Kind string

const (
	KindInvalidRequest     Kind = "InvalidRequest"
	KindMissingParameter   Kind = "MissingParameter"
	KindAssetCopy          Kind = "AssetCopyError"
	KindUpload             Kind = "UploadError"
	KindReportRegistration Kind = "ReportRegistrationError"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	stack []byte
}

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     cause,
		stack:   debug.Stack(),
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorName returns the kind as reported on the wire.
func (e *Error) ErrorName() string { return string(e.Kind) }

// Trace returns the message followed by the stack captured when the error was built.
func (e *Error) Trace() string {
	if len(e.stack) == 0 {
		return e.Error()
	}
	return e.Error() + "\n\n" + string(e.stack)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}
