package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidArgument is returned for contract violations such as k <= 0.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState is returned when a turn is requested in a state that cannot serve it.
	ErrInvalidState = errors.New("invalid state")
	// ErrIndexUnavailable is returned when an index or manifest cannot be loaded.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrNoCandidates signals that retrieval found nothing to ground on.
	ErrNoCandidates = errors.New("no candidates")
	// ErrTransient marks backend failures worth retrying.
	ErrTransient = errors.New("transient backend error")
	// ErrPermanent marks backend failures that must not be retried.
	ErrPermanent = errors.New("permanent backend error")
	// ErrRetriesExhausted is returned once the retry budget is spent.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// ErrorKind classifies a backend failure.
type ErrorKind int

const (
	KindPermanent ErrorKind = iota
	KindRateLimited
	KindUnavailable
	KindConnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "service_unavailable"
	case KindConnection:
		return "connection"
	default:
		return "permanent"
	}
}

// Transient reports whether the kind is retryable.
func (k ErrorKind) Transient() bool { return k != KindPermanent }

// BackendError wraps a failure from an external backend with its class.
type BackendError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrTransient or ErrPermanent by kind.
func (e *BackendError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind.Transient()
	case ErrPermanent:
		return !e.Kind.Transient()
	}
	return false
}

// NewBackendError returns nil when err is nil.
func NewBackendError(op string, kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Kind: kind, Err: err}
}

// KindForStatus maps an HTTP status from a backend to an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout, status >= 500:
		return KindUnavailable
	default:
		return KindPermanent
	}
}
