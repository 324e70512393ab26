package booking

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindUnauthorized    Kind = "unauthorized"
	KindNotFound        Kind = "not_found"
	KindInvalidState    Kind = "invalid_state"
	KindUnavailable     Kind = "unavailable"
	KindExternalService Kind = "external_service"
	KindPersistence     Kind = "persistence"
	KindConfiguration   Kind = "configuration"
)

// Error is what the orchestrators return to callers. Message is safe to show
// to a customer; Err carries the cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Repository sentinels. The orchestrators translate them into Kinds.
var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrStateChanged    = errors.New("booking changed since it was read")
	ErrSeatUnavailable = errors.New("target session has no free seat")
)

// KindOf returns the Kind of err, or KindPersistence for anything that is not
// an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindUnavailable:
		return http.StatusConflict
	case KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
