package store

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	AlreadyExists ErrorCode = "already-exists"
	DBConflict    ErrorCode = "db-conflict"
	DBProblem     ErrorCode = "db-problem"
)

// StoreError carries an ErrorCode so callers can tell conflicts
// (retry) from other database problems.
type StoreError struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func WrapErr(code ErrorCode, msg string, err error) error {
	return &StoreError{Code: code, Msg: msg, Err: err}
}

// IsError reports whether err is a StoreError with the given code.
func IsError(err error, code ErrorCode) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
