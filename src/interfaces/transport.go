package interfaces

import (
	"context"

	"commission-observer/src/models"
)

// -----------------------------------------------------------------------------
// ITransport owns the single socket to the remote platform.
// -----------------------------------------------------------------------------

type ITransport interface {

	// Open dials the platform and returns once the socket is ready.
	// Only one Open may ever be in flight per transport.
	Open(ctx context.Context, cfg models.MConnectionConfig) error

	// -----------------------------------------------------------------------------

	// Send serialises payload as JSON and writes it verbatim.
	Send(payload interface{}) error

	// -----------------------------------------------------------------------------

	// SetMessageHandler replaces the single inbound handler.
	SetMessageHandler(fn func(raw []byte))

	// -----------------------------------------------------------------------------

	// SetCloseHandler is called once when the socket drops or is closed.
	SetCloseHandler(fn func(err error))

	// -----------------------------------------------------------------------------

	// Close is idempotent.
	Close() error
}
