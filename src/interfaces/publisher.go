package interfaces

import (
	"context"

	"commission-observer/src/models"
)

// -----------------------------------------------------------------------------
// IReportPublisher emits report snapshots to downstream consumers.
// -----------------------------------------------------------------------------

type IReportPublisher interface {
	Publish(ctx context.Context, snapshotID string, report *models.MCommissionReport) error

	// -----------------------------------------------------------------------------

	Close() error
}
