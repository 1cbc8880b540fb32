package storage

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"commission-observer/src/logger"
	"commission-observer/src/models"
)

func quietLogger() *logger.Logger {
	log := logger.NewLogger(nil, "Storage")
	log.SetOutput(io.Discard)
	return log
}

func sampleReport(generatedAt time.Time, siteIDs ...string) *models.MCommissionReport {
	report := &models.MCommissionReport{
		TotalCommission: 17.5,
		TotalTrades:     len(siteIDs),
		ActiveSites:     len(siteIDs),
		AvgVolume:       17.5 / float64(max(len(siteIDs), 1)),
		GeneratedAt:     generatedAt,
		ChartData: []models.MChartPoint{
			{Date: "2024-01-02", Commission: 7.5, Trades: 1, Volume: 75},
			{Date: "2024-01-01", Commission: 10, Trades: 1, Volume: 100},
		},
	}
	for _, id := range siteIDs {
		report.Sites = append(report.Sites, models.MSiteSummary{
			ID: id, Name: "Client " + id, Commission: 1, Trades: 1,
			Status: models.SiteStatusActive, Token: "tok-" + id,
			LastUpdate: generatedAt.Add(-time.Hour).Truncate(time.Millisecond),
		})
	}
	return report
}

func openSQLite(t *testing.T) *AsyncSQLiteDB {
	t.Helper()
	cfg := &models.MConfig{Storage: models.MStorageConfig{
		DBType:        "sqlite",
		DBPath:        filepath.Join(t.TempDir(), "commission.db"),
		RetentionDays: 30,
	}}
	db, err := NewAsyncSQLiteDB(cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteLatestReportEmpty(t *testing.T) {
	db := openSQLite(t)
	report, err := db.LatestReport()
	if err != nil || report != nil {
		t.Fatalf("expected nil report on empty db, got %+v, %v", report, err)
	}
}

func TestSQLiteSaveAndLoadLatest(t *testing.T) {
	db := openSQLite(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	firstID, err := db.SaveReport(sampleReport(now.Add(-time.Hour), "old"))
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	secondID, err := db.SaveReport(sampleReport(now, "zeta", "alpha"))
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if firstID == secondID || len(secondID) != 36 {
		t.Fatalf("expected distinct uuids, got %q and %q", firstID, secondID)
	}

	latest, err := db.LatestReport()
	if err != nil {
		t.Fatalf("LatestReport: %v", err)
	}
	if !latest.GeneratedAt.Equal(now) {
		t.Fatalf("expected newest snapshot, got %v", latest.GeneratedAt)
	}
	if len(latest.Sites) != 2 || latest.Sites[0].ID != "zeta" || latest.Sites[1].ID != "alpha" {
		t.Fatalf("site order not preserved: %+v", latest.Sites)
	}
	if latest.Sites[0].Token != "tok-zeta" || !latest.Sites[0].LastUpdate.Equal(now.Add(-time.Hour)) {
		t.Fatalf("site fields lost: %+v", latest.Sites[0])
	}
	if len(latest.ChartData) != 2 || latest.ChartData[0].Date != "2024-01-01" || latest.ChartData[1].Volume != 75 {
		t.Fatalf("chart data not restored ascending: %+v", latest.ChartData)
	}
	if latest.TotalCommission != 17.5 || latest.TotalTrades != 2 {
		t.Fatalf("totals lost: %+v", latest)
	}
}

func TestSQLiteCleanupRemovesExpiredSnapshots(t *testing.T) {
	db := openSQLite(t)
	now := time.Now().UTC()

	if _, err := db.SaveReport(sampleReport(now.AddDate(0, 0, -100), "expired")); err != nil {
		t.Fatal(err)
	}
	if _, err := db.SaveReport(sampleReport(now.AddDate(0, 0, -1), "kept")); err != nil {
		t.Fatal(err)
	}

	if err := db.CleanupOldData(); err != nil {
		t.Fatalf("CleanupOldData: %v", err)
	}

	var snapshots, sites, points int
	db.DB.QueryRow("SELECT COUNT(*) FROM report_snapshots").Scan(&snapshots)
	db.DB.QueryRow("SELECT COUNT(*) FROM site_summaries").Scan(&sites)
	db.DB.QueryRow("SELECT COUNT(*) FROM chart_points").Scan(&points)
	if snapshots != 1 || sites != 1 || points != 2 {
		t.Fatalf("expected one snapshot left with its rows, got %d/%d/%d", snapshots, sites, points)
	}

	latest, err := db.LatestReport()
	if err != nil || latest.Sites[0].ID != "kept" {
		t.Fatalf("wrong snapshot survived: %+v, %v", latest, err)
	}
}

func TestSQLiteInitializeIsRepeatable(t *testing.T) {
	db := openSQLite(t)
	if _, err := db.SaveReport(sampleReport(time.Now(), "a")); err != nil {
		t.Fatal(err)
	}
	if err := db.createTables(); err != nil {
		t.Fatalf("second createTables: %v", err)
	}
	if latest, err := db.LatestReport(); err != nil || latest == nil {
		t.Fatalf("data lost after re-initialization: %v", err)
	}
}
