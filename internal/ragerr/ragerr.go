// Package ragerr defines the error taxonomy shared by the ingestion and chat
// pipelines. Every error the API surfaces to a client carries a Kind, which
// the HTTP layer maps to a status code and a `detail` message.
package ragerr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind int

const (
	// KindUnknown is any error without a taxonomy kind.
	KindUnknown Kind = iota

	// KindConfiguration means bad chunking or engine parameters. The caller
	// must fix the configuration; never retried.
	KindConfiguration

	// KindInvalidRequest means a malformed request (bad form, bad JSON,
	// missing fields). Never retried, no index mutation.
	KindInvalidRequest

	// KindEmptyDocument means the ingested document had no extractable text.
	KindEmptyDocument

	// KindUnsupportedFormat means the uploaded file type is not supported.
	KindUnsupportedFormat

	// KindPayloadTooLarge means the upload exceeded the configured ceiling.
	KindPayloadTooLarge

	// KindRetrievalUnavailable means both search back-ends failed for a turn.
	KindRetrievalUnavailable

	// KindGeneration means the language-model call failed after bounded
	// retries. Terminal for the turn.
	KindGeneration
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindInvalidRequest:
		return "invalid_request"
	case KindEmptyDocument:
		return "empty_document"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindRetrievalUnavailable:
		return "retrieval_unavailable"
	case KindGeneration:
		return "generation"
	default:
		return "unknown"
	}
}

// Error is a kinded engine error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from an error chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
