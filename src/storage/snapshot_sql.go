package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"commission-observer/src/models"

	"github.com/google/uuid"
)

// Table names shared by both backends.
const (
	tableSnapshots = "report_snapshots"
	tableSites     = "site_summaries"
	tableChart     = "chart_points"
)

// snapshotSQL holds what differs between the SQL dialects: how tables are
// qualified and how placeholders are spelled.
type snapshotSQL struct {
	table       func(name string) string
	placeholder func(n int) string
}

func (q snapshotSQL) values(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = q.placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

// -----------------------------------------------------------------------------
// Write
// -----------------------------------------------------------------------------

func saveReport(db *sql.DB, q snapshotSQL, report *models.MCommissionReport) (string, error) {
	if report == nil {
		return "", errors.New("nil report")
	}
	id := uuid.NewString()

	tx, err := db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(fmt.Sprintf(`
		INSERT INTO %s (id, generated_at, total_commission, total_trades, active_sites, avg_volume)
		VALUES (%s)
	`, q.table(tableSnapshots), q.values(6)),
		id, report.GeneratedAt.UnixMilli(), report.TotalCommission, report.TotalTrades, report.ActiveSites, report.AvgVolume)
	if err != nil {
		return "", fmt.Errorf("failed to insert snapshot: %w", err)
	}

	if len(report.Sites) > 0 {
		stmt, err := tx.Prepare(fmt.Sprintf(`
			INSERT INTO %s (snapshot_id, position, site_id, name, commission, trades, status, token, last_update)
			VALUES (%s)
		`, q.table(tableSites), q.values(9)))
		if err != nil {
			return "", err
		}
		defer stmt.Close()

		for i, s := range report.Sites {
			if _, err := stmt.Exec(id, i, s.ID, s.Name, s.Commission, s.Trades, s.Status, s.Token, s.LastUpdate.UnixMilli()); err != nil {
				return "", fmt.Errorf("failed to insert site %s: %w", s.ID, err)
			}
		}
	}

	if len(report.ChartData) > 0 {
		stmt, err := tx.Prepare(fmt.Sprintf(`
			INSERT INTO %s (snapshot_id, date, commission, trades, volume)
			VALUES (%s)
		`, q.table(tableChart), q.values(5)))
		if err != nil {
			return "", err
		}
		defer stmt.Close()

		for _, p := range report.ChartData {
			if _, err := stmt.Exec(id, p.Date, p.Commission, p.Trades, p.Volume); err != nil {
				return "", fmt.Errorf("failed to insert chart point %s: %w", p.Date, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// -----------------------------------------------------------------------------
// Read
// -----------------------------------------------------------------------------

func latestReport(db *sql.DB, q snapshotSQL) (*models.MCommissionReport, error) {
	var (
		id          string
		generatedAt int64
		report      models.MCommissionReport
	)
	err := db.QueryRow(fmt.Sprintf(`
		SELECT id, generated_at, total_commission, total_trades, active_sites, avg_volume
		FROM %s ORDER BY generated_at DESC LIMIT 1
	`, q.table(tableSnapshots))).Scan(&id, &generatedAt, &report.TotalCommission, &report.TotalTrades, &report.ActiveSites, &report.AvgVolume)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	report.GeneratedAt = time.UnixMilli(generatedAt).UTC()

	rows, err := db.Query(fmt.Sprintf(`
		SELECT site_id, name, commission, trades, status, token, last_update
		FROM %s WHERE snapshot_id = %s ORDER BY position
	`, q.table(tableSites), q.placeholder(1)), id)
	if err != nil {
		return nil, err
	}
	report.Sites = make([]models.MSiteSummary, 0)
	for rows.Next() {
		var s models.MSiteSummary
		var lastUpdate int64
		if err := rows.Scan(&s.ID, &s.Name, &s.Commission, &s.Trades, &s.Status, &s.Token, &lastUpdate); err != nil {
			rows.Close()
			return nil, err
		}
		s.LastUpdate = time.UnixMilli(lastUpdate).UTC()
		report.Sites = append(report.Sites, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.Query(fmt.Sprintf(`
		SELECT date, commission, trades, volume
		FROM %s WHERE snapshot_id = %s ORDER BY date
	`, q.table(tableChart), q.placeholder(1)), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	report.ChartData = make([]models.MChartPoint, 0)
	for rows.Next() {
		var p models.MChartPoint
		if err := rows.Scan(&p.Date, &p.Commission, &p.Trades, &p.Volume); err != nil {
			return nil, err
		}
		report.ChartData = append(report.ChartData, p)
	}
	return &report, rows.Err()
}

// -----------------------------------------------------------------------------
// Retention
// -----------------------------------------------------------------------------

// cleanupBefore deletes every snapshot generated before cutoff together with
// its rows and returns how many snapshots went.
func cleanupBefore(db *sql.DB, q snapshotSQL, cutoff time.Time) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	old := fmt.Sprintf("SELECT id FROM %s WHERE generated_at < %s", q.table(tableSnapshots), q.placeholder(1))
	for _, child := range []string{tableSites, tableChart} {
		query := fmt.Sprintf("DELETE FROM %s WHERE snapshot_id IN (%s)", q.table(child), old)
		if _, err := tx.Exec(query, cutoff.UnixMilli()); err != nil {
			return 0, fmt.Errorf("failed to clean %s: %w", child, err)
		}
	}

	res, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE generated_at < %s", q.table(tableSnapshots), q.placeholder(1)), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to clean %s: %w", tableSnapshots, err)
	}
	removed, _ := res.RowsAffected()

	return removed, tx.Commit()
}

func retentionCutoff(cfg *models.MConfig, now time.Time) (time.Time, bool) {
	if cfg == nil || cfg.Storage.RetentionDays <= 0 {
		return time.Time{}, false
	}
	return now.UTC().AddDate(0, 0, -cfg.Storage.RetentionDays), true
}
