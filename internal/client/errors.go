package client

import (
	"errors"
	"fmt"

	"github.com/docfeed/dslisten/internal/protocol"
)

// Failure classes. Every error returned by this package wraps exactly one.
var (
	ErrUnreachable    = errors.New("server unreachable")
	ErrInvalidLicense = errors.New("server license invalid")
	ErrAuthentication = errors.New("authentication rejected")
	ErrTransport      = errors.New("transport failure")
)

// ErrClosed is returned by Next after the subscription has been closed.
var ErrClosed = fmt.Errorf("%w: subscription closed", ErrTransport)

// ServerError is an error frame sent by the server.
type ServerError struct {
	Code    protocol.ErrorCode
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "server error: " + string(e.Code)
	}
	return fmt.Sprintf("server error: %s: %s", e.Code, e.Message)
}

// Unwrap maps the error code onto the package failure classes.
func (e *ServerError) Unwrap() error {
	switch e.Code {
	case protocol.CodeInvalidLicense:
		return ErrInvalidLicense
	case protocol.CodeAuthFailed:
		return ErrAuthentication
	default:
		return ErrTransport
	}
}
