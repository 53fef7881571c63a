package types

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a send failure. The classification is the most
// important contract of the provider boundary: callers decide whether
// a retry can possibly succeed based on it.
type ErrorKind int

const (
	// ErrorKindTransient covers network timeouts, 5xx responses and
	// provider-side temporary rate-limit signals. Retrying may succeed.
	ErrorKindTransient ErrorKind = iota
	// ErrorKindPermanent covers invalid recipients and rejected
	// payloads. Retrying the same recipient cannot succeed.
	ErrorKindPermanent
	// ErrorKindChannelFatal covers revoked credentials and banned or
	// deleted channels. The whole job must stop, not just the recipient.
	ErrorKindChannelFatal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTransient:
		return "transient"
	case ErrorKindPermanent:
		return "permanent"
	case ErrorKindChannelFatal:
		return "channel_fatal"
	default:
		return "unknown"
	}
}

// SendError is a classified provider send failure
type SendError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *SendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider send failed (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider send failed (%s): %s", e.Kind, e.Message)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// NewSendError builds a classified send error from an HTTP status code
func NewSendError(statusCode int, message string, err error) *SendError {
	return &SendError{
		Kind:       classifyStatus(statusCode),
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// NewTransportError classifies a transport-level failure (connection
// refused, timeout, cancelled context) as transient.
func NewTransportError(err error) *SendError {
	return &SendError{
		Kind:    ErrorKindTransient,
		Message: err.Error(),
		Err:     err,
	}
}

func classifyStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return ErrorKindChannelFatal
	case statusCode == http.StatusTooManyRequests, statusCode == http.StatusRequestTimeout:
		return ErrorKindTransient
	case statusCode >= 500:
		return ErrorKindTransient
	case statusCode >= 400:
		return ErrorKindPermanent
	default:
		return ErrorKindTransient
	}
}

// IsTransient reports whether err is a retryable send failure.
// Untyped errors (network failures, deadline exceeded) count as
// transient so the retry budget, not the classification, bounds them.
func IsTransient(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind == ErrorKindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return !IsPermanent(err) && !IsChannelFatal(err)
}

// IsPermanent reports whether err can never succeed on retry
func IsPermanent(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Kind == ErrorKindPermanent
}

// IsChannelFatal reports whether err means the whole channel is dead
func IsChannelFatal(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Kind == ErrorKindChannelFatal
}
