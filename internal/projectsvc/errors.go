package projectsvc

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure the way the flows react to it.
type Kind int

const (
	// KindValidation is a locally detected or server reported (4xx) input problem.
	KindValidation Kind = iota + 1
	// KindNetwork is a transport failure or an unreachable service.
	KindNetwork
	// KindAuth is a 401. It is handled by the session gate, never by a flow.
	KindAuth
	// KindServer is a 5xx or an unreadable success response.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrValidation = errors.New("validation failed")
	ErrNetwork    = errors.New("network failure")
	ErrAuth       = errors.New("session expired")
	ErrServer     = errors.New("server error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNetwork:
		return ErrNetwork
	case KindAuth:
		return ErrAuth
	case KindServer:
		return ErrServer
	}
	return nil
}

// Error is returned by every Client call that fails.
type Error struct {
	Kind Kind
	// Op is the logical operation, e.g. "upload" or "delete".
	Op string
	// Status is the HTTP status, zero for transport and local failures.
	Status int
	// Message is the server supplied `error` text, or a local validation message.
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" && e.Status != 0 {
		msg = http.StatusText(e.Status)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %s", e.Op, e.Kind, e.Status, msg)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s error: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrAuth) and friends match by kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// NewValidationError builds a locally detected validation failure.
func NewValidationError(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// KindOf classifies any error. Errors that did not come from this package,
// context cancellation included, are treated as transport failures.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNetwork
}

// UserMessage picks the text shown to the user. Validation errors that carry a
// message (server reported or local) show it verbatim; everything else shows
// fallback, which should prompt a manual retry.
func UserMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindValidation && e.Message != "" {
		return e.Message
	}
	return fallback
}

// statusKind maps a non-2xx status to a Kind.
func statusKind(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindValidation
	default:
		return KindServer
	}
}
