package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure for job results and API envelopes.
// Stages wrap their errors in *Error; the orchestrator branches on Kind
// rather than on concrete error types from collaborator packages.
type Kind string

const (
	KindInputInvalid      Kind = "input_invalid"
	KindDownloadFailed    Kind = "download_failed"
	KindDecodeFailed      Kind = "decode_failed"
	KindAnalyzeFailed     Kind = "analyze_failed"
	KindDuplicate         Kind = "duplicate"
	KindMaterializeFailed Kind = "materialize_failed"
	KindPersistenceFailed Kind = "persistence_failed"
	KindCancelled         Kind = "cancelled"
	KindInternal          Kind = "internal"
)

type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Stage, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, stage, message string) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message}
}

func Newf(kind Kind, stage, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, stage string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Stage: stage, Message: msg, Cause: cause}
}

// KindOf maps any error to its failure kind. Cancellation is recognized
// even when it arrives as a bare context error from a collaborator.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// Message returns the human half of the {kind, message} envelope.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Message != "" {
			return fe.Message
		}
		if fe.Cause != nil {
			return fe.Cause.Error()
		}
	}
	return err.Error()
}
