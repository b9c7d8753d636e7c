package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a job ended without a result.
type ErrorKind string

const (
	KindInvalidURL          ErrorKind = "invalid_url"
	KindIDExtractionFailed  ErrorKind = "id_extraction_failed"
	KindMetadataUnavailable ErrorKind = "metadata_unavailable"
	KindDurationExceeded    ErrorKind = "duration_exceeded"
	KindConversionRejected  ErrorKind = "conversion_rejected"
	KindPollLimitExceeded   ErrorKind = "poll_limit_exceeded"
	KindTransportError      ErrorKind = "transport_error"
)

// Adapter-level sentinels.
var (
	ErrNotFound  = errors.New("video not found or unavailable")
	ErrTransport = errors.New("transport failure")
)

// ErrorInfo is the serialisable part of a ConversionError stored on the job.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ConversionError is the terminal error of a job.
type ConversionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError builds a ConversionError; err may be nil.
func NewError(kind ErrorKind, message string, err error) *ConversionError {
	return &ConversionError{Kind: kind, Message: message, Err: err}
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Info strips the wrapped cause.
func (e *ConversionError) Info() *ErrorInfo {
	return &ErrorInfo{Kind: e.Kind, Message: e.Message}
}

// KindOf returns the kind of a ConversionError anywhere in err's chain, or "".
func KindOf(err error) ErrorKind {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
