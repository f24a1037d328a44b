// Package etlerr classifies pipeline failures so batch status can report a
// distinct set of failure codes instead of opaque error strings.
package etlerr

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Code identifies a failure class in a batch status report.
type Code string

const (
	// CodeTransientIO covers unreachable stores and databases; the same
	// window is retried on the next cycle.
	CodeTransientIO Code = "transient_io"
	// CodeDataShape covers missing columns and unparseable values; hard
	// failure for the artifact being built.
	CodeDataShape Code = "data_shape"
	// CodeConfig covers credential and configuration failures; never retried
	// by the pipeline itself.
	CodeConfig Code = "config"
	// CodeUnknown is anything we could not classify.
	CodeUnknown Code = "unknown"
)

// Error carries a failure code alongside the underlying cause.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with an explicit failure code.
func New(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Classify returns the failure code for err, preferring an explicit *Error
// in the chain and falling back to connectivity/credential heuristics.
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}

	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CodeTransientIO
	}

	errStr := strings.ToLower(err.Error())

	for _, pattern := range configPatterns {
		if strings.Contains(errStr, pattern) {
			return CodeConfig
		}
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return CodeTransientIO
		}
	}

	return CodeUnknown
}

// IsTransient reports whether the error is worth retrying within the cycle.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return Classify(err) == CodeTransientIO
}

var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"no such host",
	"dial tcp",
	"broken pipe",
	"network is unreachable",
	"no route to host",
	"i/o timeout",
	"timeout",
	"timed out",
	"too many requests",
	"service unavailable",
	"slow down",
	"pool is closed",
	"server shutdown",
}

var configPatterns = []string{
	"unauthorized",
	"authentication failed",
	"invalid credentials",
	"access denied",
	"permission denied",
	"password authentication failed",
	"no credential providers",
	"invalidaccesskeyid",
	"signaturedoesnotmatch",
}
