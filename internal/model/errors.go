package model

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindNotFound   ErrorKind = "not_found"
	ErrorKindRetrieval  ErrorKind = "retrieval"
	ErrorKindGeneration ErrorKind = "generation"
	ErrorKindStorage    ErrorKind = "storage"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRating     = fmt.Errorf("rating must be between %d and %d", MinSatisfactionRating, MaxSatisfactionRating)
	ErrInvalidStatus     = errors.New("unknown conversation status")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// Error tags a failure with its kind and the step that produced it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewValidationError(op string, err error) *Error {
	return &Error{Kind: ErrorKindValidation, Op: op, Err: err}
}

func NewNotFoundError(op string, err error) *Error {
	return &Error{Kind: ErrorKindNotFound, Op: op, Err: err}
}

func NewRetrievalError(op string, err error) *Error {
	return &Error{Kind: ErrorKindRetrieval, Op: op, Err: err}
}

func NewGenerationError(op string, err error) *Error {
	return &Error{Kind: ErrorKindGeneration, Op: op, Err: err}
}

func NewStorageError(op string, err error) *Error {
	return &Error{Kind: ErrorKindStorage, Op: op, Err: err}
}

// KindOf returns the kind of the outermost tagged error in err's chain.
// Untagged ErrNotFound is reported as not_found; anything else untagged is "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return ErrorKindNotFound
	}
	return ""
}

// WrapStoreError tags a store failure: not-found and validation errors keep
// their kind, everything else becomes a storage error.
func WrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch KindOf(err) {
	case ErrorKindNotFound, ErrorKindValidation:
		return err
	}
	return NewStorageError(op, err)
}
