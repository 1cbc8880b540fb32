package correlator

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"commission-observer/src/helpers"
	"commission-observer/src/interfaces"
	"commission-observer/src/logger"
	"commission-observer/src/models"
)

// Outcome labels reported to the observer.
const (
	OutcomeOK              = "ok"
	OutcomeRemoteError     = "remote_error"
	OutcomeTimeout         = "timeout"
	OutcomeConnectionError = "connection_error"
	OutcomeReleased        = "released"
)

// -----------------------------------------------------------------------------

// Result is delivered exactly once per registered request.
// Payload is the whole inbound message when Err is nil.
type Result struct {
	Payload json.RawMessage
	Err     error
}

type pendingRequest struct {
	id        int64
	createdAt time.Time
	result    chan Result
	timer     *time.Timer
}

// -----------------------------------------------------------------------------
// Correlator
// -----------------------------------------------------------------------------

// Correlator multiplexes many request/response exchanges over one inbound
// stream, keyed by req_id. It is the only permanent message handler of a
// session's transport.
type Correlator struct {
	Logger   *logger.Logger
	Observer interfaces.IRequestObserver

	lastID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]*pendingRequest
	flushed error // set by FailAll; later registrations fail with it
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewCorrelator(log *logger.Logger, observer interfaces.IRequestObserver) *Correlator {
	if log == nil {
		log = logger.NewLogger(nil, "Correlator")
	}
	return &Correlator{
		Logger:   log,
		Observer: observer,
		pending:  make(map[int64]*pendingRequest),
	}
}

// -----------------------------------------------------------------------------

// NextID returns the next correlation id, starting at 1. Ids are never reused.
func (c *Correlator) NextID() int64 {
	return c.lastID.Add(1)
}

// -----------------------------------------------------------------------------

// Register starts waiting for the reply to id. The returned channel receives
// exactly one Result. Registering an id that is already pending panics.
func (c *Correlator) Register(id int64, timeout time.Duration) <-chan Result {
	p := &pendingRequest{
		id:        id,
		createdAt: time.Now(),
		result:    make(chan Result, 1),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[id]; exists {
		panic(fmt.Sprintf("correlator: request id %d registered twice", id))
	}

	if c.flushed != nil {
		p.result <- Result{Err: c.flushed}
		return p.result
	}

	c.pending[id] = p
	p.timer = time.AfterFunc(timeout, func() {
		c.expire(p, timeout)
	})

	if c.Observer != nil {
		c.Observer.RequestStarted()
	}
	return p.result
}

// -----------------------------------------------------------------------------

// Dispatch routes one inbound message to the request waiting on its req_id.
// Messages without a req_id, or for ids nobody waits on, are dropped.
func (c *Correlator) Dispatch(raw []byte) {
	var env models.MEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.Logger.Warning("Dropping undecodable message: %v", err)
		return
	}
	if env.ReqID == nil {
		c.Logger.Debug("Dropping unsolicited %q message", env.MsgType)
		return
	}

	p := c.take(*env.ReqID)
	if p == nil {
		c.Logger.Debug("Dropping reply for unknown req_id %d", *env.ReqID)
		return
	}

	if env.Error != nil {
		c.finish(p, Result{Err: helpers.NewRemoteError(env.Error.Code, env.Error.Message, env.MsgType)}, OutcomeRemoteError)
		return
	}

	payload := make(json.RawMessage, len(raw))
	copy(payload, raw)
	c.finish(p, Result{Payload: payload}, OutcomeOK)
}

// -----------------------------------------------------------------------------

// Release resolves a pending request with err without waiting for a reply.
// Used when the send itself failed or the caller stopped waiting.
func (c *Correlator) Release(id int64, err error) {
	if p := c.take(id); p != nil {
		c.finish(p, Result{Err: err}, OutcomeReleased)
	}
}

// -----------------------------------------------------------------------------

// FailAll rejects every pending request with err and makes later
// registrations fail immediately with the same error.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	if c.flushed == nil {
		c.flushed = err
	}
	drained := make([]*pendingRequest, 0, len(c.pending))
	for id, p := range c.pending {
		p.timer.Stop()
		delete(c.pending, id)
		drained = append(drained, p)
	}
	c.mu.Unlock()

	if len(drained) > 0 {
		c.Logger.Info("Failing %d pending request(s): %v", len(drained), err)
	}
	for _, p := range drained {
		c.finish(p, Result{Err: err}, OutcomeConnectionError)
	}
}

// -----------------------------------------------------------------------------

// Pending returns the number of requests still waiting.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

// take removes and returns the pending entry for id, stopping its timer.
func (c *Correlator) take(id int64) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	p.timer.Stop()
	delete(c.pending, id)
	return p
}

// expire fires from the request timer. The identity check keeps a timer that
// lost the race against a reply from touching anything.
func (c *Correlator) expire(p *pendingRequest, timeout time.Duration) {
	c.mu.Lock()
	current, ok := c.pending[p.id]
	if !ok || current != p {
		c.mu.Unlock()
		return
	}
	delete(c.pending, p.id)
	c.mu.Unlock()

	c.Logger.Warning("Request %d timed out after %v", p.id, timeout)
	c.finish(p, Result{Err: helpers.NewTimeoutError(p.id, timeout)}, OutcomeTimeout)
}

func (c *Correlator) finish(p *pendingRequest, res Result, outcome string) {
	p.result <- res
	if c.Observer != nil {
		c.Observer.RequestFinished(outcome, time.Since(p.createdAt))
	}
}
