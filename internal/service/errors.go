package service

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies pipeline failures for the retry policy.
type Kind string

const (
	KindTransientNetwork  Kind = "TRANSIENT_NETWORK"
	KindInvalidCredential Kind = "INVALID_CREDENTIAL"
	KindMediaRejected     Kind = "MEDIA_REJECTED"
	KindEncodingFailed    Kind = "ENCODING_FAILED"
	KindRateLimited       Kind = "RATE_LIMITED"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Transient(op string, err error) error { return newError(KindTransientNetwork, op, err) }

func InvalidCredential(op string, err error) error {
	return newError(KindInvalidCredential, op, err)
}

func MediaRejected(op string, err error) error { return newError(KindMediaRejected, op, err) }

func EncodingFailed(op string, err error) error { return newError(KindEncodingFailed, op, err) }

func RateLimited(op string, err error) error { return newError(KindRateLimited, op, err) }

// KindOf returns the failure kind of err. Unclassified errors are treated
// as transient so the job queue retries them.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransientNetwork
}

// IsPermanent reports whether retrying err cannot succeed.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindInvalidCredential, KindMediaRejected, KindEncodingFailed:
		return true
	}
	return false
}

// classifyNetwork wraps transport-level failures from an HTTP call.
func classifyNetwork(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Transient(op, fmt.Errorf("timeout: %w", err))
	}
	return Transient(op, err)
}
