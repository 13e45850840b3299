package media

import (
	"errors"
	"fmt"
)

// Kind classifies a failed download so it can cross the service boundary
// without leaking process diagnostics.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindToolUnavailable    Kind = "tool_unavailable"
	KindUnsupportedSource  Kind = "unsupported_source"
	KindSourceUnavailable  Kind = "source_unavailable"
	KindTimeout            Kind = "timeout"
	KindArtifactMissing    Kind = "artifact_missing"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindUnknown            Kind = "unknown"
)

var defaultMessages = map[Kind]string{
	KindInvalidInput:       "invalid request",
	KindToolUnavailable:    "the extraction tool is not installed on the server",
	KindUnsupportedSource:  "unsupported URL, check that the link is correct",
	KindSourceUnavailable:  "the video is unavailable or private",
	KindTimeout:            "time limit exceeded, try a shorter video",
	KindArtifactMissing:    "the extraction finished but no file was produced",
	KindStorageUnavailable: "staging storage is unavailable",
	KindUnknown:            "failed to process the video",
}

// Message returns the human readable text shown to callers for k.
func (k Kind) Message() string {
	if msg, ok := defaultMessages[k]; ok {
		return msg
	}
	return defaultMessages[KindUnknown]
}

// Error is the only error type the download service returns to its callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error with the kind's default message.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: kind.Message(), Err: err}
}

// Errorf builds an Error with a custom caller-facing message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// PublicMessage returns the text that may be shown to a caller for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return KindUnknown.Message()
}
