package extractor

import (
	"context"
	"errors"
	"net"
)

// ErrorCode classifies a failed resolution for the caller
type ErrorCode string

// Error code constants
const (
	CodeIdentifierNotFound  ErrorCode = "identifier_not_found"
	CodeUpstreamTimeout     ErrorCode = "upstream_timeout"
	CodeResolutionFailed    ErrorCode = "resolution_failed"
	CodeNoPlayableMedia     ErrorCode = "no_playable_media"
	CodeBrowserLaunchFailed ErrorCode = "browser_launch_failed"
)

// DouyinError is the only error a resolution returns to its caller.
type DouyinError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *DouyinError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DouyinError) Unwrap() error {
	return e.Err
}

// ErrNoPayload is returned by a strategy that finished without a usable
// payload. It is an expected outcome that moves resolution to the next
// strategy.
var ErrNoPayload = errors.New("no recognizable payload")

// errBrowserLaunch marks launch failures so retries stop early.
var errBrowserLaunch = errors.New("browser launch failed")

// CodeOf returns the code of a *DouyinError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var de *DouyinError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// noPayload wraps cause so that errors.Is(err, ErrNoPayload) holds and a
// timeout cause stays visible to isTimeout.
func noPayload(cause error) error {
	if cause == nil {
		return ErrNoPayload
	}
	return &noPayloadError{cause: cause}
}

type noPayloadError struct {
	cause error
}

func (e *noPayloadError) Error() string   { return ErrNoPayload.Error() + ": " + e.cause.Error() }
func (e *noPayloadError) Unwrap() []error { return []error{ErrNoPayload, e.cause} }

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
