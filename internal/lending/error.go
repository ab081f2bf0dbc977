package lending

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotFound         Code = "NOT_FOUND"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeAlreadyAvailable Code = "ALREADY_AVAILABLE"
	CodeConflict         Code = "CONFLICT"
	CodeStorage          Code = "STORAGE"
)

type APIError struct {
	Code    Code
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

func ErrInvalid(msg string) *APIError          { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError         { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrInvalidState(msg string) *APIError     { return &APIError{Code: CodeInvalidState, Message: msg} }
func ErrAlreadyAvailable(msg string) *APIError { return &APIError{Code: CodeAlreadyAvailable, Message: msg} }
func ErrConflict(msg string) *APIError         { return &APIError{Code: CodeConflict, Message: msg} }
func ErrStorage(err error) *APIError {
	return &APIError{Code: CodeStorage, Message: "storage failure", Err: err}
}

// CodeOf returns the error code carried by err. Errors that are not *APIError count as storage failures.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeStorage
}

func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState, CodeAlreadyAvailable, CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
