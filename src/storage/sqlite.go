package storage

import (
	"database/sql"
	"fmt"
	"time"

	"commission-observer/src/logger"
	"commission-observer/src/models"

	_ "modernc.org/sqlite"
)

var sqliteDialect = snapshotSQL{
	table:       func(name string) string { return name },
	placeholder: func(int) string { return "?" },
}

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	return &AsyncSQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) createTables() error {
	// SQLite types: INTEGER for int64 and unix millis, REAL for float64, TEXT for string
	queries := []string{
		`CREATE TABLE IF NOT EXISTS report_snapshots (
			id TEXT PRIMARY KEY,
			generated_at INTEGER NOT NULL,
			total_commission REAL,
			total_trades INTEGER,
			active_sites INTEGER,
			avg_volume REAL
		);`,
		`CREATE TABLE IF NOT EXISTS site_summaries (
			snapshot_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			site_id TEXT,
			name TEXT,
			commission REAL,
			trades INTEGER,
			status TEXT,
			token TEXT,
			last_update INTEGER,
			PRIMARY KEY (snapshot_id, position)
		);`,
		`CREATE TABLE IF NOT EXISTS chart_points (
			snapshot_id TEXT NOT NULL,
			date TEXT NOT NULL,
			commission REAL,
			trades INTEGER,
			volume REAL,
			PRIMARY KEY (snapshot_id, date)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_report_snapshots_generated_at ON report_snapshots (generated_at);`,
	}

	for _, query := range queries {
		if _, err := d.DB.Exec(query); err != nil {
			return fmt.Errorf("failed to create sqlite tables: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveReport(report *models.MCommissionReport) (string, error) {
	return saveReport(d.DB, sqliteDialect, report)
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) LatestReport() (*models.MCommissionReport, error) {
	return latestReport(d.DB, sqliteDialect)
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) CleanupOldData() error {
	cutoff, ok := retentionCutoff(d.Config, time.Now())
	if !ok {
		return nil
	}

	d.Logger.Info("Cleaning up snapshots older than %d days (before %s)...", d.Config.Storage.RetentionDays, cutoff.Format(time.RFC3339))

	removed, err := cleanupBefore(d.DB, sqliteDialect, cutoff)
	if err != nil {
		d.Logger.Error("Cleanup error: %v", err)
		return err
	}

	d.Logger.Info("Cleanup completed, %d snapshot(s) removed", removed)
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
