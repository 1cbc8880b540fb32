// Package aggregator turns raw platform transactions into site summaries and
// daily chart series. Everything here is pure: no I/O, no clocks except the
// one passed in.
package aggregator

import (
	"sort"
	"time"

	"commission-observer/src/models"

	"github.com/shopspring/decimal"
)

const (
	// UnknownSite groups transactions that carry no client id.
	UnknownSite = "unknown"

	dayLayout = "2006-01-02"
)

// -----------------------------------------------------------------------------
// By site
// -----------------------------------------------------------------------------

type siteAcc struct {
	commission decimal.Decimal
	trades     int
	token      string
	lastUpdate time.Time
}

// GroupBySite sums commission and counts trades per client id. Sites come
// out in the order their first transaction appeared. Every site that shows up
// in the query is reported active; LastUpdate is its newest created_at.
func GroupBySite(txs []models.MRawTransaction, now time.Time) []models.MSiteSummary {
	groups := newOrderedGroups[string, siteAcc]()

	for _, tx := range txs {
		key := string(tx.ClientID)
		if key == "" {
			key = UnknownSite
		}

		acc := groups.getOrCreate(key, func() siteAcc {
			return siteAcc{commission: decimal.Zero, token: tx.Token}
		})
		acc.commission = acc.commission.Add(decimal.NewFromFloat(float64(tx.Commission)))
		acc.trades++
		if !tx.CreatedAt.IsZero() && tx.CreatedAt.After(acc.lastUpdate) {
			acc.lastUpdate = tx.CreatedAt.UTC()
		}
	}

	sites := make([]models.MSiteSummary, 0, groups.len())
	groups.each(func(id string, acc *siteAcc) {
		last := acc.lastUpdate
		if last.IsZero() {
			last = now.UTC()
		}
		sites = append(sites, models.MSiteSummary{
			ID:         id,
			Name:       "Client " + id,
			Commission: acc.commission.InexactFloat64(),
			Trades:     acc.trades,
			Status:     models.SiteStatusActive,
			Token:      acc.token,
			LastUpdate: last,
		})
	})
	return sites
}

// -----------------------------------------------------------------------------
// By day
// -----------------------------------------------------------------------------

type dayAcc struct {
	commission decimal.Decimal
	volume     decimal.Decimal
	trades     int
}

// GroupByDay buckets txs by UTC calendar day of timestampOf. The result holds
// one point per distinct day, strictly ascending.
func GroupByDay[T any](
	txs []T,
	commissionOf func(T) decimal.Decimal,
	volumeOf func(T) decimal.Decimal,
	timestampOf func(T) time.Time,
) []models.MChartPoint {
	groups := newOrderedGroups[string, dayAcc]()

	for _, tx := range txs {
		day := timestampOf(tx).UTC().Format(dayLayout)
		acc := groups.getOrCreate(day, func() dayAcc {
			return dayAcc{commission: decimal.Zero, volume: decimal.Zero}
		})
		acc.commission = acc.commission.Add(commissionOf(tx))
		acc.volume = acc.volume.Add(volumeOf(tx))
		acc.trades++
	}

	points := make([]models.MChartPoint, 0, groups.len())
	groups.each(func(day string, acc *dayAcc) {
		points = append(points, models.MChartPoint{
			Date:       day,
			Commission: acc.commission.InexactFloat64(),
			Trades:     acc.trades,
			Volume:     acc.volume.InexactFloat64(),
		})
	})

	// YYYY-MM-DD sorts lexically in date order.
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

// -----------------------------------------------------------------------------
// Reports
// -----------------------------------------------------------------------------

// BuildCommissionReport aggregates the commission query. The chart uses the
// transaction creation time; a missing created_at counts as now.
func BuildCommissionReport(txs []models.MRawTransaction, now time.Time) *models.MCommissionReport {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(decimal.NewFromFloat(float64(tx.Commission)))
	}

	sites := GroupBySite(txs, now)

	trades := len(txs)
	avg := total.Div(decimal.NewFromInt(int64(max(trades, 1))))

	chart := GroupByDay(txs,
		func(tx models.MRawTransaction) decimal.Decimal { return decimal.NewFromFloat(float64(tx.Commission)) },
		func(tx models.MRawTransaction) decimal.Decimal { return decimal.NewFromFloat(float64(tx.Amount)) },
		func(tx models.MRawTransaction) time.Time {
			if tx.CreatedAt.IsZero() {
				return now
			}
			return tx.CreatedAt.Time
		},
	)

	return &models.MCommissionReport{
		TotalCommission: total.InexactFloat64(),
		TotalTrades:     trades,
		ActiveSites:     len(sites),
		AvgVolume:       avg.InexactFloat64(),
		Sites:           sites,
		ChartData:       chart,
		GeneratedAt:     now.UTC(),
	}
}

// ProfitTableSeries aggregates profit-table rows by purchase day. Commission
// per trade is sell price minus buy price; volume is the buy price.
func ProfitTableSeries(txs []models.MProfitTransaction) []models.MChartPoint {
	return GroupByDay(txs,
		func(tx models.MProfitTransaction) decimal.Decimal {
			return decimal.NewFromFloat(float64(tx.SellPrice)).Sub(decimal.NewFromFloat(float64(tx.BuyPrice)))
		},
		func(tx models.MProfitTransaction) decimal.Decimal { return decimal.NewFromFloat(float64(tx.BuyPrice)) },
		func(tx models.MProfitTransaction) time.Time { return time.Unix(tx.PurchaseTime, 0) },
	)
}
