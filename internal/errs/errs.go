// Package errs is the closed error taxonomy shared by the REST client, the
// dispatch engine and the HTTP handlers. Callers branch on Kind instead of
// matching message strings.
package errs

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation: caller input broke a precondition, nothing was sent.
	KindValidation
	// KindTransport: the server answered with a non-2xx status.
	KindTransport
	// KindNetwork: no answer at all (refused, DNS, timeout, abort).
	KindNetwork
	// KindDecode: the answer had an unknown shape.
	KindDecode
	KindNotFound
	// KindConfig: a channel is selected but its credentials are missing.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindNetwork:
		return "network"
	case KindDecode:
		return "decode"
	case KindNotFound:
		return "not_found"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return e.Message + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Cause keeps pkg/errors.Cause working through this type.
func (e *Error) Cause() error { return e.Err }

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Transport builds the error of a non-2xx answer. An empty message falls back
// to "HTTP error! status: N".
func Transport(status int, message string) error {
	if message == "" {
		message = fmt.Sprintf("HTTP error! status: %d", status)
	}
	return &Error{Kind: KindTransport, Status: status, Message: message}
}

func Network(err error, message string) error {
	return &Error{Kind: KindNetwork, Message: message, Err: errors.WithStack(err)}
}

func Decode(err error, message string) error {
	return &Error{Kind: KindDecode, Message: message, Err: err}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

func Config(format string, args ...any) error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusOf returns the upstream HTTP status carried by a transport error, 0 otherwise.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// Message extracts a human-readable description. Unknown or empty errors
// yield fallback.
func Message(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// UserMessage is what end users see for err, keeping "cannot reach the
// server" apart from "server rejected the request".
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindNetwork:
		return "cannot reach the server"
	case KindTransport:
		return "server rejected the request: " + Message(err, "")
	default:
		return Message(err, "unknown error")
	}
}

// HTTPStatus maps a kind onto the status the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTransport, KindDecode:
		return http.StatusBadGateway
	case KindNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
