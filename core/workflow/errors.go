package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected operation.
type Kind string

const (
	KindDuplicateEntity   Kind = "duplicate_entity"
	KindMissingSelection  Kind = "missing_selection"
	KindCyclicDependency  Kind = "cyclic_dependency"
	KindNotFound          Kind = "not_found"
	KindForwardDependency Kind = "forward_dependency"
	KindInvalid           Kind = "invalid"
)

var (
	ErrDuplicateEntity   = errors.New("duplicate entity")
	ErrMissingSelection  = errors.New("missing selection")
	ErrCyclicDependency  = errors.New("cyclic dependency")
	ErrNotFound          = errors.New("not found")
	ErrForwardDependency = errors.New("dependency target is not earlier")
	ErrInvalid           = errors.New("invalid input")
)

var kindErrors = map[Kind]error{
	KindDuplicateEntity:   ErrDuplicateEntity,
	KindMissingSelection:  ErrMissingSelection,
	KindCyclicDependency:  ErrCyclicDependency,
	KindNotFound:          ErrNotFound,
	KindForwardDependency: ErrForwardDependency,
	KindInvalid:           ErrInvalid,
}

// Error is a rejected operation. errors.Is matches the sentinel for its Kind.
type Error struct {
	Kind   Kind   `json:"kind"`
	Op     string `json:"op"`
	Detail string `json:"detail"`
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Unwrap())
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Unwrap(), e.Detail)
}

func (e *Error) Unwrap() error {
	if err, ok := kindErrors[e.Kind]; ok {
		return err
	}
	return ErrInvalid
}

// NewError builds an *Error with a formatted detail.
func NewError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// KindOf reports the Kind of err, or "" when err is not a workflow error.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	for kind, sentinel := range kindErrors {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}
