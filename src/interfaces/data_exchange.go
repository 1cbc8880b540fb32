package interfaces

import (
	"context"
	"time"

	"commission-observer/src/models"
)

// -----------------------------------------------------------------------------
// IDataExchanger defining the interface for sharing reports with external systems (Server/Push).
// -----------------------------------------------------------------------------

type IDataExchanger interface {
	// -----------------------------------------------------------------------------
	// Broadcast pushes a fresh report to every subscriber and stores it as latest.
	Broadcast(data *models.MLatestData)

	// -----------------------------------------------------------------------------
	// UpdateAllDatas updates the internal state without broadcasting
	UpdateAllDatas(data *models.MLatestData)

	// -----------------------------------------------------------------------------
	// Start the server
	Start() error

	// -----------------------------------------------------------------------------
	// Stop the server gracefully
	Stop(ctx context.Context) error
}

// -----------------------------------------------------------------------------
// IReportProvider is what the server asks for on-demand data.
// -----------------------------------------------------------------------------

type IReportProvider interface {
	Refresh(ctx context.Context) (*models.MLatestData, error)

	// -----------------------------------------------------------------------------

	ProfitTable(ctx context.Context, dateFrom, dateTo time.Time) ([]models.MChartPoint, error)

	// -----------------------------------------------------------------------------

	Status() models.MServiceStatus

	// -----------------------------------------------------------------------------

	Settings() models.MConfig
}
