// Package failure classifies errors on the upload path so logs can tell a bad
// PDF from an unreachable upstream, while the HTTP response stays generic.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for logging. Clients never see it.
type Kind string

const (
	InvalidUpload     Kind = "invalid_upload"
	ExtractionFailure Kind = "extraction_failure"
	UpstreamFailure   Kind = "upstream_failure"
	InternalFailure   Kind = "internal_failure"
)

// Error carries the kind and the stage that produced it.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Stage)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with kind. A nil err stays nil, and an already classified
// error keeps its original kind.
func Wrap(kind Kind, stage string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// New builds a classified error from a message.
func New(kind Kind, stage, msg string) error {
	return &Error{Kind: kind, Stage: stage, Err: errors.New(msg)}
}

// KindOf reports the kind of err, InternalFailure when unclassified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return InternalFailure
}

// StageOf reports the stage recorded on err, if any.
func StageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return ""
}
