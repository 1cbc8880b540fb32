package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"commission-observer/src/logger"
	"commission-observer/src/models"

	"github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

// NewPostgresDB uses the configured schema, falling back to the executable
// name so several deployments can share one database.
func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	name := cfg.Storage.Schema
	if name == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to get executable name: %w", err)
		}
		name = filepath.Base(exe)
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}

	return &PostgresDB{
		Config: cfg,
		Schema: name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	if err := d.migrate(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) dialect() snapshotSQL {
	schema := pq.QuoteIdentifier(d.Schema)
	return snapshotSQL{
		table:       func(name string) string { return schema + "." + pq.QuoteIdentifier(name) },
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) migrate() error {
	q := d.dialect()

	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pq.QuoteIdentifier(d.Schema))); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	queries := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				generated_at BIGINT NOT NULL,
				total_commission DOUBLE PRECISION,
				total_trades INTEGER,
				active_sites INTEGER,
				avg_volume DOUBLE PRECISION
			);
		`, q.table(tableSnapshots)),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				snapshot_id TEXT NOT NULL,
				position INTEGER NOT NULL,
				site_id TEXT,
				name TEXT,
				commission DOUBLE PRECISION,
				trades INTEGER,
				status TEXT,
				token TEXT,
				last_update BIGINT,
				PRIMARY KEY (snapshot_id, position)
			);
		`, q.table(tableSites)),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				snapshot_id TEXT NOT NULL,
				date TEXT NOT NULL,
				commission DOUBLE PRECISION,
				trades INTEGER,
				volume DOUBLE PRECISION,
				PRIMARY KEY (snapshot_id, date)
			);
		`, q.table(tableChart)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_report_snapshots_generated_at ON %s (generated_at);`, q.table(tableSnapshots)),
	}

	for _, query := range queries {
		if _, err := d.DB.Exec(query); err != nil {
			return fmt.Errorf("failed to create postgres tables: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveReport(report *models.MCommissionReport) (string, error) {
	return saveReport(d.DB, d.dialect(), report)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) LatestReport() (*models.MCommissionReport, error) {
	return latestReport(d.DB, d.dialect())
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) CleanupOldData() error {
	cutoff, ok := retentionCutoff(d.Config, time.Now())
	if !ok {
		return nil
	}

	d.Logger.Info("Cleaning up snapshots older than %d days (before %s)...", d.Config.Storage.RetentionDays, cutoff.Format(time.RFC3339))

	removed, err := cleanupBefore(d.DB, d.dialect(), cutoff)
	if err != nil {
		d.Logger.Error("Cleanup error: %v", err)
		return err
	}

	d.Logger.Info("Cleanup completed, %d snapshot(s) removed", removed)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
