package interfaces

import "time"

// -----------------------------------------------------------------------------
// IRequestObserver receives correlator and dashboard events for metrics.
// -----------------------------------------------------------------------------

type IRequestObserver interface {
	// RequestStarted is called when a request is registered.
	RequestStarted()

	// -----------------------------------------------------------------------------

	// RequestFinished is called once per request with its outcome label.
	RequestFinished(outcome string, elapsed time.Duration)

	// -----------------------------------------------------------------------------

	// RefreshFinished is called after each dashboard refresh.
	RefreshFinished(err error, elapsed time.Duration)

	// -----------------------------------------------------------------------------

	// ConnectionDropped is called when a live session loses its socket.
	ConnectionDropped()
}
