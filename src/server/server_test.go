package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"commission-observer/src/helpers"
	"commission-observer/src/logger"
	"commission-observer/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type fakeProvider struct {
	mu         sync.Mutex
	refresh    *models.MLatestData
	refreshErr error
	points     []models.MChartPoint
	from, to   time.Time
	state      models.SessionState
	cfg        *models.MConfig
}

func (p *fakeProvider) Refresh(ctx context.Context) (*models.MLatestData, error) {
	return p.refresh, p.refreshErr
}

func (p *fakeProvider) ProfitTable(ctx context.Context, from, to time.Time) ([]models.MChartPoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.from, p.to = from, to
	return p.points, nil
}

func (p *fakeProvider) Status() models.MServiceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return models.MServiceStatus{SessionState: p.state.String()}
}

func (p *fakeProvider) Settings() models.MConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.cfg
}

// -----------------------------------------------------------------------------

func newTestServer(t *testing.T, provider *fakeProvider) (*FastAPIServer, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &models.MConfig{
		LogLevel: "INFO",
		Deriv: models.MDerivConfig{
			Endpoint: models.DefaultEndpoint,
			AppID:    "1089",
			APIToken: "secret-token",
		},
		Dashboard: models.MDashboardConfig{RefreshIntervalSeconds: 300, HistoryDays: 30},
	}
	provider.mu.Lock()
	if provider.cfg == nil {
		provider.cfg = cfg
	}
	provider.mu.Unlock()

	log := logger.NewLogger(cfg, "Server")
	log.SetOutput(io.Discard)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "# metrics\n")
	})

	s := NewFastAPIServer(cfg, log, provider, metrics)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Stop(context.Background())
	})
	return s, ts
}

func sampleData() *models.MLatestData {
	return &models.MLatestData{
		Report: &models.MCommissionReport{
			TotalCommission: 17,
			TotalTrades:     3,
			Sites:           []models.MSiteSummary{{ID: "A", Name: "Client A", Commission: 15, Trades: 2}},
			ChartData:       []models.MChartPoint{},
		},
		SnapshotID:   "snap-1",
		SessionState: models.StateAuthorized.String(),
		Timestamp:    1700000000,
	}
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

// -----------------------------------------------------------------------------

func TestHealthReportsDegradedUntilAuthorized(t *testing.T) {
	provider := &fakeProvider{state: models.StateConnected}
	_, ts := newTestServer(t, provider)

	var body map[string]interface{}
	if code := getJSON(t, ts.URL+"/api/health", &body); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if body["status"] != "degraded" {
		t.Fatalf("expected degraded, got %v", body["status"])
	}

	provider.mu.Lock()
	provider.state = models.StateAuthorized
	provider.mu.Unlock()
	body = nil
	getJSON(t, ts.URL+"/api/health", &body)
	if body["status"] != "ok" {
		t.Fatalf("expected ok, got %v", body["status"])
	}
}

func TestCommissionNotFoundUntilFirstReport(t *testing.T) {
	s, ts := newTestServer(t, &fakeProvider{})

	if code := getJSON(t, ts.URL+"/api/commission", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 before any report, got %d", code)
	}

	s.UpdateAllDatas(sampleData())

	var got models.MLatestData
	if code := getJSON(t, ts.URL+"/api/commission", &got); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if got.Report == nil || got.Report.TotalCommission != 17 || got.SnapshotID != "snap-1" {
		t.Fatalf("unexpected payload %+v", got)
	}

	// A state-only update keeps the cached report.
	s.UpdateAllDatas(&models.MLatestData{SessionState: models.StateClosed.String()})
	got = models.MLatestData{}
	getJSON(t, ts.URL+"/api/commission", &got)
	if got.Report == nil || got.SessionState != "closed" {
		t.Fatalf("state update dropped the report: %+v", got)
	}
}

func TestRefreshMapsErrorsToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"auth", helpers.NewAuthError("authorize failed", nil), http.StatusUnauthorized},
		{"not authorized", helpers.NewNotAuthorizedError("commission summary"), http.StatusServiceUnavailable},
		{"timeout", helpers.NewTimeoutError(3, time.Second), http.StatusGatewayTimeout},
		{"remote", helpers.NewRemoteError("RateLimit", "slow down", models.MsgTypeCommission), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestServer(t, &fakeProvider{refreshErr: tt.err})
			resp, err := http.Post(ts.URL+"/api/refresh", "application/json", nil)
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("got %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRefreshReturnsProviderData(t *testing.T) {
	_, ts := newTestServer(t, &fakeProvider{refresh: sampleData()})
	resp, err := http.Post(ts.URL+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var got models.MLatestData
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || got.Report.TotalTrades != 3 {
		t.Fatalf("unexpected response %d %+v", resp.StatusCode, got)
	}
}

func TestProfitTableParsesDates(t *testing.T) {
	provider := &fakeProvider{points: []models.MChartPoint{{Date: "2024-01-01", Commission: 8, Trades: 1, Volume: 10}}}
	_, ts := newTestServer(t, provider)

	var body struct {
		ChartData []models.MChartPoint `json:"chartData"`
	}
	code := getJSON(t, ts.URL+"/api/profit-table?date_from=2024-01-01&date_to=2024-01-31", &body)
	if code != http.StatusOK || len(body.ChartData) != 1 {
		t.Fatalf("unexpected response %d %+v", code, body)
	}
	provider.mu.Lock()
	defer provider.mu.Unlock()
	if provider.from.Format("2006-01-02") != "2024-01-01" || provider.to.Format("2006-01-02") != "2024-01-31" {
		t.Fatalf("bounds not forwarded: %v %v", provider.from, provider.to)
	}
}

func TestProfitTableRejectsBadDates(t *testing.T) {
	_, ts := newTestServer(t, &fakeProvider{})
	for _, q := range []string{"date_from=01-02-2024", "date_to=yesterday", "date_from=2024-02-01&date_to=2024-01-01"} {
		if code := getJSON(t, ts.URL+"/api/profit-table?"+q, nil); code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, code)
		}
	}
}

func TestConfigNeverExposesToken(t *testing.T) {
	_, ts := newTestServer(t, &fakeProvider{})
	resp, err := http.Get(ts.URL + "/api/config")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(raw), "secret-token") {
		t.Fatalf("token leaked: %s", raw)
	}
	if !strings.Contains(string(raw), `"has_token":true`) {
		t.Fatalf("has_token missing: %s", raw)
	}
}

func TestConfigFollowsProviderSettings(t *testing.T) {
	provider := &fakeProvider{}
	_, ts := newTestServer(t, provider)

	provider.mu.Lock()
	next := *provider.cfg
	next.Deriv.Endpoint = "wss://alt.example/websockets/v3"
	next.Deriv.AppID = "2000"
	next.Deriv.APIToken = ""
	provider.cfg = &next
	provider.mu.Unlock()

	var body map[string]interface{}
	if code := getJSON(t, ts.URL+"/api/config", &body); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if body["app_id"] != "2000" || body["endpoint"] != "wss://alt.example/websockets/v3" || body["has_token"] != false {
		t.Fatalf("config not taken from the provider: %v", body)
	}
}

func TestMetricsMounted(t *testing.T) {
	_, ts := newTestServer(t, &fakeProvider{})
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(raw), "# metrics") {
		t.Fatalf("unexpected metrics response %d %q", resp.StatusCode, raw)
	}
}

func TestSubscribeAfterStopIsIgnored(t *testing.T) {
	s, _ := newTestServer(t, &fakeProvider{})

	client := &Client{hub: s, send: make(chan *models.MLatestData, 16)}
	s.register <- client
	<-client.send

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// The hub closes client.send on shutdown; a late subscribe must not
	// write to it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.HandleClientMessage(client, []byte(`{"command":"subscribe"}`))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe blocked after stop")
	}
}

func TestSubscribeForDroppedClientIsIgnored(t *testing.T) {
	s, _ := newTestServer(t, &fakeProvider{})

	client := &Client{hub: s, send: make(chan *models.MLatestData, 16)}
	s.register <- client
	<-client.send
	s.unregister <- client

	s.HandleClientMessage(client, []byte(`{"command":"subscribe"}`))

	// The unregister closed the channel and nothing was queued after it.
	if msg, ok := <-client.send; ok {
		t.Fatalf("unexpected message after unregister: %+v", msg)
	}
}

func TestWebSocketReceivesInitialAndBroadcast(t *testing.T) {
	s, ts := newTestServer(t, &fakeProvider{})
	s.UpdateAllDatas(sampleData())

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var initial models.MLatestData
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if initial.Type != "INITIAL" || initial.SnapshotID != "snap-1" {
		t.Fatalf("unexpected initial message %+v", initial)
	}

	if err := conn.WriteJSON(models.MSubscribeCommand{Command: "subscribe", ClientType: "dashboard"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var again models.MLatestData
	if err := conn.ReadJSON(&again); err != nil {
		t.Fatalf("read subscribe reply: %v", err)
	}
	if again.Type != "INITIAL" {
		t.Fatalf("subscribe should return current state, got %+v", again)
	}

	next := sampleData()
	next.SnapshotID = "snap-2"
	s.Broadcast(next)

	var update models.MLatestData
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if update.Type != "UPDATE" || update.SnapshotID != "snap-2" {
		t.Fatalf("unexpected update %+v", update)
	}
}
