package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Code classifies an Error. Codes map onto http status codes so transports can forward them as-is.
type Code int

const (
	// Internal indicates a failure of the underlying row store or an unexpected condition
	Internal Code = http.StatusInternalServerError
	// NotFound indicates a missing view or provider
	NotFound Code = http.StatusNotFound
	// Forbidden indicates transaction misuse: writes in a read transaction, use after the transaction scope ended,
	// nested transactions on one connection or use of a closed connection/database
	Forbidden Code = http.StatusForbidden
	// Validation indicates invalid input (ex: a nil object or a document failing its collection schema)
	Validation Code = http.StatusBadRequest
	// Configuration indicates an invalid view registration or database configuration
	Configuration Code = http.StatusUnprocessableEntity
)

// Error is a custom error
type Error struct {
	Code     Code     `json:"code"`
	Messages []string `json:"messages"`
	Err      error    `json:"err,omitempty"`
}

// Error returns the Error as a json string
func (e *Error) Error() string {
	if e.Code == 0 {
		e.Code = http.StatusOK
	}
	type jsonError struct {
		Code     Code     `json:"code"`
		Messages []string `json:"messages"`
		Err      string   `json:"err,omitempty"`
	}
	je := jsonError{Code: e.Code, Messages: e.Messages}
	if e.Err != nil && e.Err != error(e) {
		je.Err = e.Err.Error()
	}
	bits, _ := json.Marshal(je)
	return string(bits)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// RemoveError removes the error from the Error and leaves it's messages and code
func (e *Error) RemoveError() *Error {
	return &Error{
		Code:     e.Code,
		Messages: e.Messages,
		Err:      nil,
	}
}

// New creates a new error with the given code and formatted message
func New(code Code, msg string, args ...any) error {
	return &Error{
		Code:     code,
		Messages: []string{fmt.Sprintf(msg, args...)},
	}
}

// Extract extracts the custom Error from the given error
func Extract(err error) *Error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if !ok {
		return &Error{
			Code:     0,
			Messages: nil,
			Err:      err,
		}
	}
	return e
}

// HasCode returns true if the error is an Error with the given code
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	e, ok := err.(*Error)
	return ok && e.Code == code
}

// Wrap wraps the given error and returns a new one. Wrapping a nil error returns nil.
func Wrap(err error, code Code, msg string, args ...any) error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if ok {
		if msg != "" {
			e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
		}
		if code > 0 {
			e.Code = code
		}
		return e
	}
	e = &Error{
		Code: code,
		Err:  err,
	}
	if msg != "" {
		e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
	}
	return e
}
