package interfaces

import (
	"context"
	"time"

	"commission-observer/src/models"
)

// -----------------------------------------------------------------------------
// ICommissionSession is the whole surface the presentation layer sees.
// -----------------------------------------------------------------------------

type ICommissionSession interface {
	Connect(ctx context.Context) error

	// -----------------------------------------------------------------------------

	Authorize(ctx context.Context) error

	// -----------------------------------------------------------------------------

	GetCommissionSummary(ctx context.Context) (*models.MCommissionReport, error)

	// -----------------------------------------------------------------------------

	// GetProfitTable fetches daily profit points; zero bounds are omitted.
	GetProfitTable(ctx context.Context, dateFrom, dateTo time.Time) ([]models.MChartPoint, error)

	// -----------------------------------------------------------------------------

	Disconnect() error

	// -----------------------------------------------------------------------------

	State() models.SessionState

	// -----------------------------------------------------------------------------

	Account() *models.MAccount
}
