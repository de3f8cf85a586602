package service

import (
	"errors"
	"fmt"
	"net/http"

	"elementd/internal/events"
)

// ErrElementExists is returned when creating an id that is already registered.
var ErrElementExists = errors.New("element already exists")

// statusError pairs an error with the HTTP status the API layer should use.
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) StatusCode() int { return e.code }

func invalid(err error) error {
	return &statusError{code: http.StatusBadRequest, err: &events.ValidationError{Errors: []string{err.Error()}}}
}

func conflict(id string) error {
	return &statusError{code: http.StatusConflict, err: fmt.Errorf("%w: %s", ErrElementExists, id)}
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", events.ErrElementNotFound, id)
}
