package utils

import (
	"errors"
	"net/http"
)

// StatusError is an error carrying the HTTP status it should be reported with.
type StatusError struct {
	err    error
	status int
}

func (se StatusError) Error() string {
	return se.err.Error()
}

func (se StatusError) Unwrap() error {
	return se.err
}

// Status returns the status code of the error.
func (se StatusError) Status() int {
	return se.status
}

// NewStatusError creates a new StatusError.
func NewStatusError(err error, s int) error {
	return StatusError{err: err, status: s}
}

// StatusOf returns the status carried by err, or 500 when it carries none.
func StatusOf(err error) int {
	var se StatusError
	if errors.As(err, &se) {
		return se.status
	}
	return http.StatusInternalServerError
}
