package wire

import (
	"errors"
	"fmt"
)

// Codec errors.
var (
	ErrMissingField    = errors.New("missing required field")
	ErrNotText         = errors.New("not valid UTF-8 text")
	ErrEmptyFrame      = errors.New("empty frame")
	ErrMalformed       = errors.New("malformed frame")
	ErrWrongFieldType  = errors.New("wrong field type")
	ErrSchemaViolation = errors.New("schema violation")
)

// EncodingError reports an outbound envelope that cannot be serialized.
type EncodingError struct {
	// Field names the offending envelope field, if any.
	Field string

	// Err is the underlying cause.
	Err error
}

func (e *EncodingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("encode envelope: %v", e.Err)
	}
	return fmt.Sprintf("encode envelope: %s: %v", e.Field, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// DecodingError reports an inbound frame that is not a valid envelope.
// Frame holds a copy of the raw input.
type DecodingError struct {
	Frame []byte
	Field string
	Err   error
}

func (e *DecodingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode envelope (%d bytes): %v", len(e.Frame), e.Err)
	}
	return fmt.Sprintf("decode envelope (%d bytes): %s: %v", len(e.Frame), e.Field, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

func newDecodingError(frame []byte, field string, err error) *DecodingError {
	return &DecodingError{
		Frame: append([]byte(nil), frame...),
		Field: field,
		Err:   err,
	}
}
