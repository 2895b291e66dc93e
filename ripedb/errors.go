package ripedb

import (
	"errors"
	"fmt"
)

var (
	ErrPageOverflow = errors.New("page holds more items than the page size")
	ErrEmptyTerm    = errors.New("empty search term")
)

// APIError reports a response that could not be decoded or does not carry the
// expected envelope.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "An unexpected error has occurred"
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// PageSizeError means the service returned a larger page than requested,
// i.e. its API changed underneath the client.
type PageSizeError struct {
	Start    int
	Got      int
	PageSize int
}

func (e *PageSizeError) Error() string {
	return fmt.Sprintf("%v: offset %d, %d items, page size %d", ErrPageOverflow, e.Start, e.Got, e.PageSize)
}

func (e *PageSizeError) Unwrap() error {
	return ErrPageOverflow
}
