package actor

import (
	"errors"

	"github.com/BoudBoud47/goactors/internal/mailbox"
)

var (
	// ErrTimeout is returned when a deadline elapsed before a message was
	// delivered or before its processing finished.
	ErrTimeout = mailbox.ErrTimeout

	// ErrClosed is returned when the target actor no longer accepts messages.
	ErrClosed = mailbox.ErrClosed

	// ErrMailboxFull is returned under the Reject overflow policy when the
	// mailbox is at capacity.
	ErrMailboxFull = mailbox.ErrMailboxFull

	// ErrCrashed resolves an ask whose message made the handler panic or
	// return an error. The message is never replayed after a restart.
	ErrCrashed = errors.New("actor: crashed while processing the message")

	// ErrSupervisorClosed is returned by Spawn during shutdown.
	ErrSupervisorClosed = errors.New("actor: supervisor is shutting down")

	// ErrNameTaken is returned when spawning under a name that is already
	// registered with the system.
	ErrNameTaken = errors.New("actor: name already registered")
)
