// Package bootstrap turns connection parameters into an authenticated
// session, reporting progress and each class of failure to the operator.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docfeed/dslisten/internal/client"
	"github.com/docfeed/dslisten/internal/config"
	"github.com/rs/zerolog/log"
)

// Connect dials conn, logs in and returns the session. Progress goes to
// out before the outcome is known; on failure a one-line explanation
// follows and the returned error wraps one of the client failure classes.
// There is no retry.
func Connect(ctx context.Context, conn config.Connection, out io.Writer) (*client.Session, error) {
	fmt.Fprintf(out, "Connecting to %s:%d\n", conn.Host, conn.Port)
	srv, err := client.Dial(ctx, conn.URL())
	if err != nil {
		report(out, conn, err)
		return nil, err
	}

	fmt.Fprintf(out, "Logging in to %s as user %s.... ", conn.Domain, conn.Username)
	sess, err := srv.Login(ctx, conn.Domain, conn.Username, conn.Password)
	if err != nil {
		fmt.Fprintln(out)
		report(out, conn, err)
		return nil, err
	}
	fmt.Fprintln(out, "Logged in!")
	fmt.Fprintln(out)
	log.Debug().Str("session", sess.ID()).Str("principal", sess.Principal()).Msg("session established")
	return sess, nil
}

// Message returns the operator-facing line for a bootstrap failure.
func Message(conn config.Connection, err error) string {
	switch {
	case errors.Is(err, client.ErrUnreachable):
		return fmt.Sprintf("Unable to connect to %s:%d.", conn.Host, conn.Port)
	case errors.Is(err, client.ErrInvalidLicense):
		return "The document server does not have the required license."
	case errors.Is(err, client.ErrAuthentication):
		return "Failed!"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Connection attempt aborted."
	default:
		return fmt.Sprintf("Connection failed: %v", err)
	}
}

func report(out io.Writer, conn config.Connection, err error) {
	fmt.Fprintln(out, Message(conn, err))
	log.Debug().Err(err).Msg("bootstrap failed")
}
