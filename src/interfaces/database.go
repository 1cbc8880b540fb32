package interfaces

import "commission-observer/src/models"

// -----------------------------------------------------------------------------
// IDatabase defines the contract for report snapshot storage.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveReport stores a full snapshot and returns its id.
	SaveReport(report *models.MCommissionReport) (string, error)

	// -----------------------------------------------------------------------------

	// LatestReport loads the most recent snapshot, or nil when none exists.
	LatestReport() (*models.MCommissionReport, error)

	// -----------------------------------------------------------------------------

	// CleanupOldData removes snapshots older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
