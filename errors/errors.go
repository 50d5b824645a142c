// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package errors wraps pkg/errors and adds error codes, so that callers
// can classify failures (cancellation, cycles, closed handles) without
// matching on message text.
package errors

import (
	"github.com/pkg/errors"
)

// Code is an error code which can be checked against a given error with
// Is(). Codes survive wrapping.
type Code string

// Codes used by the engine. ErrCancelled is the only one a caller of a
// query is expected to see and handle; the rest indicate misuse or a
// shut-down handle.
const (
	// ErrUncoded is the code carried by errors that were created without
	// choosing a code.
	ErrUncoded Code = "Uncoded"

	// ErrCancelled indicates a query unwound because a write requested
	// cancellation while it was running. Retry against a fresh snapshot.
	ErrCancelled Code = "Cancelled"

	// ErrCycle indicates a query requested its own key, directly or
	// transitively. This is a broken query graph, not a runtime condition.
	ErrCycle Code = "Cycle"

	// ErrClosed indicates an operation on a database or cache handle
	// that has already been closed.
	ErrClosed Code = "Closed"
)

func New(code Code, message string) error {
	return errors.WithStack(codedError{
		code:    code,
		message: message,
	})
}

func Newf(code Code, format string, args ...interface{}) error {
	return errors.WithStack(codedError{
		code:    code,
		message: errors.Errorf(format, args...).Error(),
	})
}

func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Is is a fork of the Is() from pkg/errors which takes as its target an
// error Code instead of an error.
func Is(err error, target Code) bool {
	return errors.Is(err, codedError{code: target})
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func Cause(err error) error {
	return errors.Cause(err)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func WithMessage(err error, message string) error {
	return errors.WithMessage(err, message)
}

func WithMessagef(err error, format string, args ...interface{}) error {
	return errors.WithMessagef(err, format, args...)
}

func WithStack(err error) error {
	return errors.WithStack(err)
}

func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// codedError is the fundamental type used by this package to provide
// coded errors.
type codedError struct {
	code    Code
	message string
}

func (ce codedError) Error() string {
	return ce.message
}

func (ce codedError) Is(err error) bool {
	if e, ok := err.(codedError); ok && ce.code == e.code {
		return true
	}
	return false
}

// CodeOf reports the code of err, or ErrUncoded if err carries none.
func CodeOf(err error) Code {
	var ce codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return ErrUncoded
}
