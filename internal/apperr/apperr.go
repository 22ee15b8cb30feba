package apperr

import (
	"errors"
	"fmt"
)

// Kind is the short machine-readable category carried by every surfaced error.
type Kind string

const (
	KindInvalidArgument   Kind = "invalid_argument"
	KindNotFound          Kind = "not_found"
	KindNoSubmission      Kind = "no_submission"
	KindGenerationParse   Kind = "generation_parse_error"
	KindEmptyGeneration   Kind = "empty_generation"
	KindGenerationTimeout Kind = "generation_timeout"
	KindGenerationFailed  Kind = "generation_failed"
	KindStorage           Kind = "storage_error"
	KindInternal          Kind = "internal"
)

// Error pairs a Kind with a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) error { return &Error{Kind: kind, Message: msg} }

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func InvalidArgument(msg string) error { return New(KindInvalidArgument, msg) }

func NotFound(msg string) error { return New(KindNotFound, msg) }

func Storage(msg string, err error) error { return Wrap(KindStorage, msg, err) }

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
