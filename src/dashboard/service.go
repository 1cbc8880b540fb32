// Package dashboard keeps one authorized session alive and turns it into
// periodic commission reports for the server, storage and publisher.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"commission-observer/src/config"
	"commission-observer/src/helpers"
	"commission-observer/src/interfaces"
	"commission-observer/src/logger"
	"commission-observer/src/models"
	"commission-observer/src/session"

	"github.com/google/uuid"
)

const reconnectBaseDelay = time.Second

// SessionFactory builds a fresh session. onState must be installed as the
// session's state listener.
type SessionFactory func(cc models.MConnectionConfig, onState func(models.SessionState)) interfaces.ICommissionSession

// StateReporter is anything that mirrors the session state (gRPC health,
// metrics gauges).
type StateReporter interface {
	SetSessionState(state models.SessionState)
}

// Metrics is what the service reports to besides per-request events.
type Metrics interface {
	interfaces.IRequestObserver
	StateReporter
	ObserveReport(report *models.MCommissionReport)
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

type Option func(*Service)

func WithDatabase(db interfaces.IDatabase) Option {
	return func(s *Service) { s.db = db }
}

func WithTokenStore(ts interfaces.ITokenStore) Option {
	return func(s *Service) { s.tokens = ts }
}

func WithPublisher(p interfaces.IReportPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithExchanger(x interfaces.IDataExchanger) Option {
	return func(s *Service) { s.exchanger = x }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
		s.reporters = append(s.reporters, m)
	}
}

func WithStateReporter(r StateReporter) Option {
	return func(s *Service) { s.reporters = append(s.reporters, r) }
}

func WithSessionFactory(f SessionFactory) Option {
	return func(s *Service) { s.newSession = f }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

// Service implements interfaces.IReportProvider.
type Service struct {
	Logger *logger.Logger

	db         interfaces.IDatabase
	tokens     interfaces.ITokenStore
	publisher  interfaces.IReportPublisher
	exchanger  interfaces.IDataExchanger
	metrics    Metrics
	reporters  []StateReporter
	newSession SessionFactory
	now        func() time.Time

	reconnect chan struct{}

	mu          sync.Mutex
	cfg         *config.Config
	sess        interfaces.ICommissionSession
	generation  int // bumped for every session built
	activeGen   int // generation of sess
	lastRefresh time.Time
	lastErr     string
	stopping    bool
}

func NewService(cfg *config.Config, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		Logger:    log,
		cfg:       cfg,
		now:       time.Now,
		reconnect: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newSession == nil {
		s.newSession = s.defaultSession
	}
	return s
}

// SetExchanger attaches the server after construction; the server itself
// needs the service as its report provider.
func (s *Service) SetExchanger(x interfaces.IDataExchanger) {
	s.mu.Lock()
	s.exchanger = x
	s.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (s *Service) defaultSession(cc models.MConnectionConfig, onState func(models.SessionState)) interfaces.ICommissionSession {
	cfg := s.config()
	opts := []session.Option{
		session.WithLogger(s.Logger.Named("Session")),
		session.WithAuthorizeTimeout(cfg.AuthorizeTimeout()),
		session.WithRequestTimeout(cfg.RequestTimeout()),
		session.WithStateListener(onState),
	}
	if s.metrics != nil {
		opts = append(opts, session.WithObserver(s.metrics))
	}
	return session.NewSession(cc, opts...)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start publishes the last stored report, then connects and runs a first
// refresh. A connect failure is returned but Run keeps retrying.
func (s *Service) Start(ctx context.Context) error {
	s.restoreLatest()

	if err := s.Connect(ctx); err != nil {
		return err
	}
	if _, err := s.Refresh(ctx); err != nil {
		s.Logger.Warning("Initial refresh failed: %v", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Run refreshes on the configured interval and rebuilds the session after a
// drop, until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	interval := s.config().RefreshInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.reconnect:
			s.Logger.Warning("Session closed, reconnecting")
			if err := s.Connect(ctx); err != nil {
				s.Logger.Error("Reconnect failed: %v", err)
				continue
			}
			if _, err := s.Refresh(ctx); err != nil {
				s.Logger.Warning("Refresh after reconnect failed: %v", err)
			}

		case <-ticker.C:
			if s.needsSession() {
				if err := s.Connect(ctx); err != nil {
					s.Logger.Error("Reconnect failed: %v", err)
					continue
				}
			}
			if _, err := s.Refresh(ctx); err != nil {
				s.Logger.Warning("Scheduled refresh failed: %v", err)
			}
		}
	}
}

// -----------------------------------------------------------------------------

// Stop disconnects the live session. The service does not reconnect after.
func (s *Service) Stop() error {
	s.mu.Lock()
	s.stopping = true
	sess := s.sess
	s.mu.Unlock()

	if sess == nil {
		return nil
	}
	return sess.Disconnect()
}

// -----------------------------------------------------------------------------
// Connection management
// -----------------------------------------------------------------------------

// Connect builds, connects and authorizes a new session with retries, then
// swaps it in and disconnects the previous one. Sessions are never reused:
// every attempt starts from a fresh one.
func (s *Service) Connect(ctx context.Context) error {
	cfg := s.config()
	cc, fromStore, err := s.credentials(ctx, cfg.ConnectionConfig())
	if err != nil {
		s.recordError(err)
		return err
	}

	var (
		sess interfaces.ICommissionSession
		gen  int
	)
	err = helpers.RetryWithBackoff(ctx, s.Logger, "Connect", cfg.Deriv.ConnectRetries, reconnectBaseDelay, func() error {
		attempt := s.nextGeneration()
		candidate := s.newSession(cc, func(st models.SessionState) { s.onSessionState(attempt, st) })
		if err := candidate.Connect(ctx); err != nil {
			return err
		}
		if err := candidate.Authorize(ctx); err != nil {
			candidate.Disconnect()
			return err
		}
		sess, gen = candidate, attempt
		return nil
	})
	if err != nil {
		var authErr *helpers.AuthError
		if errors.As(err, &authErr) && s.tokens != nil && fromStore {
			if clearErr := s.tokens.Clear(ctx); clearErr != nil {
				s.Logger.Warning("Could not clear rejected token: %v", clearErr)
			}
		}
		s.recordError(err)
		return err
	}

	s.mu.Lock()
	old := s.sess
	s.sess = sess
	s.activeGen = gen
	s.lastErr = ""
	s.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}

	account := sess.Account()
	if account != nil {
		s.Logger.Info("Authorized as %s (%s)", account.LoginID, account.Currency)
	}
	s.publishState(models.StateAuthorized)
	s.storeCredentials(ctx, cc, account)
	return nil
}

// -----------------------------------------------------------------------------

// Reconnect adopts a new configuration and replaces the session.
func (s *Service) Reconnect(ctx context.Context, cfg *config.Config) error {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return s.Connect(ctx)
}

// -----------------------------------------------------------------------------

// TestConnection runs connect, authorize and disconnect on a throwaway
// session and reports the account it authorized as.
func (s *Service) TestConnection(ctx context.Context, cc models.MConnectionConfig) (*models.MAccount, error) {
	sess := s.newSession(cc, func(models.SessionState) {})
	defer sess.Disconnect()

	if err := sess.Connect(ctx); err != nil {
		return nil, err
	}
	if err := sess.Authorize(ctx); err != nil {
		return nil, err
	}
	return sess.Account(), nil
}

// -----------------------------------------------------------------------------
// IReportProvider
// -----------------------------------------------------------------------------

// Refresh fetches the commission summary and the profit table concurrently
// over the one session. Profit-table points replace the summary chart when
// there are any.
func (s *Service) Refresh(ctx context.Context) (*models.MLatestData, error) {
	start := s.now()
	sess := s.current()
	if sess == nil {
		err := helpers.NewNotConnectedError("no session")
		s.finishRefresh(err, start)
		return nil, err
	}

	cfg := s.config()
	days := cfg.Dashboard.HistoryDays
	dateTo := start.UTC()
	dateFrom := dateTo.AddDate(0, 0, -days)

	var (
		wg         sync.WaitGroup
		report     *models.MCommissionReport
		points     []models.MChartPoint
		summaryErr error
		profitErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		report, summaryErr = sess.GetCommissionSummary(ctx)
	}()
	go func() {
		defer wg.Done()
		points, profitErr = sess.GetProfitTable(ctx, dateFrom, dateTo)
	}()
	wg.Wait()

	if summaryErr != nil {
		s.finishRefresh(summaryErr, start)
		return nil, summaryErr
	}
	if profitErr != nil {
		s.Logger.Warning("Profit table unavailable, keeping summary chart: %v", profitErr)
	} else if len(points) > 0 {
		report.ChartData = points
	}

	snapshotID := s.persist(report)
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, snapshotID, report); err != nil {
			s.Logger.Warning("Publish failed: %v", err)
		}
	}

	elapsed := s.now().Sub(start)
	data := &models.MLatestData{
		Type:         "UPDATE",
		Report:       report,
		SnapshotID:   snapshotID,
		SessionState: sess.State().String(),
		Timestamp:    start.Unix(),
		Metrics: models.MRefreshMetrics{
			RefreshTimeSeconds: elapsed.Seconds(),
			Transactions:       report.TotalTrades,
			ProfitTableDays:    days,
		},
	}

	if x := s.exchangerRef(); x != nil {
		x.Broadcast(data)
	}
	if s.metrics != nil {
		s.metrics.ObserveReport(report)
	}
	s.finishRefresh(nil, start)

	s.Logger.Info("Refreshed: %d sites, %d trades, commission %.2f", len(report.Sites), report.TotalTrades, report.TotalCommission)
	return data, nil
}

// -----------------------------------------------------------------------------

func (s *Service) ProfitTable(ctx context.Context, dateFrom, dateTo time.Time) ([]models.MChartPoint, error) {
	sess := s.current()
	if sess == nil {
		return nil, helpers.NewNotConnectedError("no session")
	}
	return sess.GetProfitTable(ctx, dateFrom, dateTo)
}

// -----------------------------------------------------------------------------

func (s *Service) Status() models.MServiceStatus {
	s.mu.Lock()
	sess := s.sess
	status := models.MServiceStatus{
		SessionState: models.StateIdle.String(),
		LastError:    s.lastErr,
	}
	if !s.lastRefresh.IsZero() {
		status.LastRefresh = s.lastRefresh.Unix()
	}
	s.mu.Unlock()

	if sess != nil {
		status.SessionState = sess.State().String()
		if account := sess.Account(); account != nil {
			status.LoginID = account.LoginID
		}
	}
	return status
}

// -----------------------------------------------------------------------------

// Settings returns a copy of the configuration currently in force. It follows
// Reconnect.
func (s *Service) Settings() models.MConfig {
	return *s.config().MConfig
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// credentials fills a missing token from the token store. fromStore reports
// whether the token came from there.
func (s *Service) credentials(ctx context.Context, cc models.MConnectionConfig) (models.MConnectionConfig, bool, error) {
	if cc.AccessToken != "" || s.tokens == nil {
		if cc.AccessToken == "" {
			return cc, false, helpers.NewAuthError("no API token configured", nil)
		}
		return cc, false, nil
	}

	creds, err := s.tokens.Load(ctx)
	if err != nil {
		return cc, false, helpers.NewAuthError("no API token configured and token store failed", err)
	}
	if creds == nil || (creds.AppID != "" && creds.AppID != cc.AppID) {
		return cc, false, helpers.NewAuthError("no API token configured or stored", nil)
	}

	cc.AccessToken = creds.AccessToken
	if cc.ServerURL == "" {
		cc.ServerURL = creds.ServerURL
	}
	s.Logger.Info("Using stored credentials for %s", creds.LoginID)
	return cc, true, nil
}

func (s *Service) storeCredentials(ctx context.Context, cc models.MConnectionConfig, account *models.MAccount) {
	if s.tokens == nil {
		return
	}
	creds := models.MStoredCredentials{
		AppID:       cc.AppID,
		AccessToken: cc.AccessToken,
		ServerURL:   cc.ServerURL,
		SavedAt:     s.now().Unix(),
	}
	if account != nil {
		creds.LoginID = account.LoginID
	}
	if err := s.tokens.Save(ctx, creds); err != nil {
		s.Logger.Warning("Could not store credentials: %v", err)
	}
}

// -----------------------------------------------------------------------------

// persist stores the report and returns its snapshot id. Without a database
// the id is still unique so published events can be keyed.
func (s *Service) persist(report *models.MCommissionReport) string {
	if s.db == nil {
		return uuid.NewString()
	}
	id, err := s.db.SaveReport(report)
	if err != nil {
		s.Logger.Error("Failed to save snapshot: %v", err)
		return uuid.NewString()
	}
	if err := s.db.CleanupOldData(); err != nil {
		s.Logger.Warning("Snapshot cleanup failed: %v", err)
	}
	return id
}

func (s *Service) restoreLatest() {
	if s.db == nil {
		return
	}
	report, err := s.db.LatestReport()
	if err != nil {
		s.Logger.Warning("Could not load last snapshot: %v", err)
		return
	}
	if report == nil {
		return
	}
	if x := s.exchangerRef(); x != nil {
		x.UpdateAllDatas(&models.MLatestData{
			Type:         "INITIAL",
			Report:       report,
			SessionState: models.StateIdle.String(),
			Timestamp:    report.GeneratedAt.Unix(),
		})
	}
	s.Logger.Info("Restored snapshot from %s", report.GeneratedAt.Format(time.RFC3339))
}

// -----------------------------------------------------------------------------

// onSessionState ignores sessions that have been replaced, and candidates
// while a healthy session is still serving. Only the active session reaching
// Closed triggers a rebuild.
func (s *Service) onSessionState(gen int, st models.SessionState) {
	s.mu.Lock()
	replacing := gen > s.activeGen && s.sess != nil && s.sess.State() == models.StateAuthorized
	stale := gen < s.activeGen || replacing
	rebuild := gen == s.activeGen && st == models.StateClosed && !s.stopping
	s.mu.Unlock()

	if stale {
		return
	}
	s.publishState(st)

	if rebuild {
		select {
		case s.reconnect <- struct{}{}:
		default:
		}
	}
}

func (s *Service) publishState(st models.SessionState) {
	for _, r := range s.reporters {
		r.SetSessionState(st)
	}
	if x := s.exchangerRef(); x != nil {
		x.UpdateAllDatas(&models.MLatestData{SessionState: st.String(), Timestamp: s.now().Unix()})
	}
}

// -----------------------------------------------------------------------------

func (s *Service) finishRefresh(err error, start time.Time) {
	if s.metrics != nil {
		s.metrics.RefreshFinished(err, s.now().Sub(start))
	}
	if err != nil {
		s.recordError(err)
		return
	}
	s.mu.Lock()
	s.lastRefresh = start
	s.lastErr = ""
	s.mu.Unlock()
}

func (s *Service) recordError(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

func (s *Service) needsSession() bool {
	sess := s.current()
	return sess == nil || sess.State() == models.StateClosed
}

func (s *Service) nextGeneration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

func (s *Service) current() interfaces.ICommissionSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *Service) config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) exchangerRef() interfaces.IDataExchanger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchanger
}
