package ecs

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (wrapped) by the registry and the World.
// Callers match them with errors.Is.
var (
	ErrDuplicateID      = errors.New("duplicate entity id")
	ErrUnknownID        = errors.New("unknown entity id")
	ErrUnknownComponent = errors.New("unknown component")
	ErrInvalidValue     = errors.New("invalid value")
	ErrNotUnique        = errors.New("component kind is not unique")
	ErrRegistryFrozen   = errors.New("schema registry is frozen")
)

// EntityError reports a failed World operation on a specific entity.
type EntityError struct {
	Op  string
	ID  ID
	Err error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error { return e.Err }

// FieldError reports a rejected field assignment.
type FieldError struct {
	Kind  string
	Field string
	Value any
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s.%s = %#v: %v", e.Kind, e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func entityErr(op string, id ID, err error) error {
	return &EntityError{Op: op, ID: id, Err: err}
}
