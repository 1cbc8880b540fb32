package observability

import (
	"errors"
	"testing"
	"time"

	"commission-observer/src/interfaces"
	"commission-observer/src/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ interfaces.IRequestObserver = (*PromMetrics)(nil)

func TestRequestMetrics(t *testing.T) {
	m := NewPromMetrics(prometheus.NewRegistry())

	m.RequestStarted()
	m.RequestStarted()
	if got := testutil.ToFloat64(m.inFlight); got != 2 {
		t.Fatalf("expected 2 in flight, got %f", got)
	}

	m.RequestFinished("ok", 20*time.Millisecond)
	m.RequestFinished("timeout", 15*time.Second)
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("expected 0 in flight, got %f", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("timeout")); got != 1 {
		t.Fatalf("expected 1 timeout, got %f", got)
	}
	if samples := testutil.CollectAndCount(m.requestLatency); samples != 1 {
		t.Fatalf("expected one histogram series, got %d", samples)
	}
}

func TestRefreshAndReportMetrics(t *testing.T) {
	m := NewPromMetrics(prometheus.NewRegistry())

	m.RefreshFinished(nil, time.Second)
	m.RefreshFinished(errors.New("boom"), time.Second)
	if got := testutil.ToFloat64(m.refreshes.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected 1 ok refresh, got %f", got)
	}
	if got := testutil.ToFloat64(m.refreshes.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed refresh, got %f", got)
	}
	if got := testutil.ToFloat64(m.lastRefresh); got == 0 {
		t.Fatal("last refresh timestamp not set")
	}

	m.ConnectionDropped()
	if got := testutil.ToFloat64(m.drops); got != 1 {
		t.Fatalf("expected 1 drop, got %f", got)
	}

	m.SetSessionState(models.StateAuthorized)
	if got := testutil.ToFloat64(m.sessionState); got != float64(models.StateAuthorized) {
		t.Fatalf("unexpected state gauge %f", got)
	}

	m.ObserveReport(&models.MCommissionReport{TotalCommission: 42.5, ActiveSites: 3})
	m.ObserveReport(nil)
	if got := testutil.ToFloat64(m.totalCommission); got != 42.5 {
		t.Fatalf("unexpected commission gauge %f", got)
	}
	if got := testutil.ToFloat64(m.activeSites); got != 3 {
		t.Fatalf("unexpected active sites gauge %f", got)
	}
}

func TestRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPromMetrics(reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	// Vectors without observed labels are not gathered.
	if len(families) != 8 {
		t.Fatalf("expected 8 metric families, got %d", len(families))
	}
}
