// Package session sequences connect, authorize and the two commission
// queries over one platform connection.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"commission-observer/src/aggregator"
	"commission-observer/src/correlator"
	"commission-observer/src/helpers"
	"commission-observer/src/interfaces"
	"commission-observer/src/logger"
	"commission-observer/src/models"
	"commission-observer/src/transport"
)

const (
	DefaultAuthorizeTimeout = 10 * time.Second
	DefaultRequestTimeout   = 15 * time.Second

	dateLayout = "2006-01-02"
)

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

type Option func(*Session)

func WithLogger(log *logger.Logger) Option {
	return func(s *Session) { s.Logger = log }
}

// WithTransport replaces the default gorilla/websocket transport.
func WithTransport(t interfaces.ITransport) Option {
	return func(s *Session) { s.transport = t }
}

func WithObserver(o interfaces.IRequestObserver) Option {
	return func(s *Session) { s.observer = o }
}

func WithAuthorizeTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.authorizeTimeout = d
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithStateListener is called after every state change, outside any lock.
func WithStateListener(fn func(models.SessionState)) Option {
	return func(s *Session) { s.onState = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// -----------------------------------------------------------------------------
// Session
// -----------------------------------------------------------------------------

// Session owns one transport and one correlator. It moves through
// Idle → Connecting → Connected → Authorizing → Authorized and ends in
// Closed, which is terminal: reconnecting means building a new Session.
type Session struct {
	Logger *logger.Logger

	cfg        models.MConnectionConfig
	transport  interfaces.ITransport
	correlator *correlator.Correlator
	observer   interfaces.IRequestObserver
	onState    func(models.SessionState)
	now        func() time.Time

	authorizeTimeout time.Duration
	requestTimeout   time.Duration

	mu            sync.Mutex
	state         models.SessionState
	account       *models.MAccount
	disconnecting bool
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewSession(cfg models.MConnectionConfig, opts ...Option) *Session {
	s := &Session{
		cfg:              cfg,
		now:              time.Now,
		authorizeTimeout: DefaultAuthorizeTimeout,
		requestTimeout:   DefaultRequestTimeout,
		state:            models.StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Logger == nil {
		s.Logger = logger.NewLogger(nil, "Session")
	}
	if s.transport == nil {
		s.transport = transport.NewWebSocketTransport(s.Logger.Named("WebSocketTransport"))
	}
	s.correlator = correlator.NewCorrelator(s.Logger.Named("Correlator"), s.observer)
	return s
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Connect opens the transport. The correlator becomes the permanent message
// handler before the socket can deliver anything.
func (s *Session) Connect(ctx context.Context) error {
	if !s.transition(models.StateIdle, models.StateConnecting) {
		return helpers.NewConnectionError("session can only connect once, state is "+s.State().String(), nil)
	}

	s.transport.SetMessageHandler(s.correlator.Dispatch)
	s.transport.SetCloseHandler(s.handleClose)

	// Open may call handleClose synchronously on failure, so no lock is held here.
	if err := s.transport.Open(ctx, s.cfg); err != nil {
		s.moveToClosed()
		var connErr *helpers.ConnectionError
		if errors.As(err, &connErr) {
			return err
		}
		return helpers.NewConnectionError("failed to open connection", err)
	}

	if !s.transition(models.StateConnecting, models.StateConnected) {
		return helpers.NewConnectionError("connection closed while connecting", nil)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Authorize sends the access token. Both a rejected token and a missing
// answer leave the session Connected so the caller may retry.
func (s *Session) Authorize(ctx context.Context) error {
	switch st := s.State(); st {
	case models.StateAuthorized:
		return nil
	case models.StateConnected:
	default:
		return helpers.NewNotConnectedError("authorize requires a connected session, state is " + st.String())
	}

	if s.cfg.AccessToken == "" {
		return helpers.NewAuthError("no access token configured", nil)
	}
	if !s.transition(models.StateConnected, models.StateAuthorizing) {
		return helpers.NewNotConnectedError("session changed state before authorize")
	}

	raw, err := s.roundTrip(ctx, func(id int64) interface{} {
		return models.MAuthorizeRequest{Authorize: s.cfg.AccessToken, ReqID: id}
	}, s.authorizeTimeout)

	var reply *Reply
	if err == nil {
		reply, err = DecodeReply(raw, models.MsgTypeAuthorize)
	}
	if err != nil {
		s.transition(models.StateAuthorizing, models.StateConnected)

		var remote *helpers.RemoteError
		var protocol *helpers.ProtocolError
		switch {
		case errors.As(err, &remote):
			return helpers.NewAuthError(remote.Message, remote)
		case errors.As(err, &protocol):
			return helpers.NewAuthError("authorize failed", protocol)
		}
		return err
	}

	s.mu.Lock()
	if s.state != models.StateAuthorizing {
		s.mu.Unlock()
		return helpers.NewConnectionError("connection closed during authorize", nil)
	}
	s.state = models.StateAuthorized
	s.account = reply.Account
	s.mu.Unlock()
	s.notify(models.StateAuthorized)

	if reply.Account.LoginID == "" {
		s.Logger.Warning("Authorized, but the reply names no account")
	} else {
		s.Logger.Info("Authorized as %s (%s)", reply.Account.LoginID, reply.Account.Currency)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Disconnect closes the transport and fails anything still pending. Safe to
// call more than once and from any state.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == models.StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.disconnecting = true
	s.mu.Unlock()

	err := s.transport.Close()
	s.correlator.FailAll(helpers.NewConnectionError("session disconnected", nil))
	s.moveToClosed()
	return err
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// GetCommissionSummary fetches affiliate transactions and aggregates them.
func (s *Session) GetCommissionSummary(ctx context.Context) (*models.MCommissionReport, error) {
	if err := s.requireAuthorized("commission summary"); err != nil {
		return nil, err
	}

	raw, err := s.roundTrip(ctx, func(id int64) interface{} {
		return models.MCommissionRequest{AffiliateAccountAdd: 1, ReqID: id}
	}, s.requestTimeout)
	if err != nil {
		return nil, err
	}

	reply, err := DecodeReply(raw, models.MsgTypeCommission)
	if err != nil {
		return nil, err
	}
	return aggregator.BuildCommissionReport(reply.Transactions, s.now()), nil
}

// -----------------------------------------------------------------------------

// GetProfitTable fetches per-trade history and returns one point per day.
// Zero bounds are left out of the request.
func (s *Session) GetProfitTable(ctx context.Context, dateFrom, dateTo time.Time) ([]models.MChartPoint, error) {
	if err := s.requireAuthorized("profit table"); err != nil {
		return nil, err
	}

	req := models.MProfitTableRequest{ProfitTable: 1, Description: 1, Sort: "ASC"}
	if !dateFrom.IsZero() {
		req.DateFrom = dateFrom.UTC().Format(dateLayout)
	}
	if !dateTo.IsZero() {
		req.DateTo = dateTo.UTC().Format(dateLayout)
	}

	raw, err := s.roundTrip(ctx, func(id int64) interface{} {
		r := req
		r.ReqID = id
		return r
	}, s.requestTimeout)
	if err != nil {
		return nil, err
	}

	reply, err := DecodeReply(raw, models.MsgTypeProfit)
	if err != nil {
		return nil, err
	}
	return aggregator.ProfitTableSeries(reply.ProfitRows), nil
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Account is the authorized account, or nil before Authorize succeeds.
func (s *Session) Account() *models.MAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return nil
	}
	acct := *s.account
	return &acct
}

func (s *Session) Config() models.MConnectionConfig {
	return s.cfg
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

// roundTrip sends one request and waits for its correlated reply. A caller
// that gives up through ctx releases its entry so nothing is left pending.
func (s *Session) roundTrip(ctx context.Context, build func(id int64) interface{}, timeout time.Duration) ([]byte, error) {
	id := s.correlator.NextID()
	result := s.correlator.Register(id, timeout)

	if err := s.transport.Send(build(id)); err != nil {
		s.correlator.Release(id, err)
	}

	select {
	case res := <-result:
		return res.Payload, res.Err
	case <-ctx.Done():
		s.correlator.Release(id, ctx.Err())
		res := <-result
		return res.Payload, res.Err
	}
}

func (s *Session) requireAuthorized(op string) error {
	if s.State() != models.StateAuthorized {
		return helpers.NewNotAuthorizedError(op)
	}
	return nil
}

// handleClose is the transport close hook.
func (s *Session) handleClose(reason error) {
	var connErr *helpers.ConnectionError
	if !errors.As(reason, &connErr) {
		reason = helpers.NewConnectionError("connection closed", reason)
	}
	s.correlator.FailAll(reason)

	s.mu.Lock()
	dropped := !s.disconnecting && s.state != models.StateClosed && s.state != models.StateConnecting
	s.mu.Unlock()

	if dropped {
		s.Logger.Warning("Connection dropped: %v", reason)
		if s.observer != nil {
			s.observer.ConnectionDropped()
		}
	}
	s.moveToClosed()
}

func (s *Session) moveToClosed() {
	s.mu.Lock()
	if s.state == models.StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = models.StateClosed
	s.account = nil
	s.mu.Unlock()
	s.notify(models.StateClosed)
}

// transition moves from -> to only if the session is currently in from.
func (s *Session) transition(from, to models.SessionState) bool {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()
	s.notify(to)
	return true
}

func (s *Session) notify(state models.SessionState) {
	if s.onState != nil {
		s.onState(state)
	}
}
