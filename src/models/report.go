package models

import "time"

// Site status values.
const (
	SiteStatusActive   = "active"
	SiteStatusInactive = "inactive"
)

// MSiteSummary is the per-client commission total.
type MSiteSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Commission float64   `json:"commission"`
	Trades     int       `json:"trades"`
	Status     string    `json:"status"`
	Token      string    `json:"token"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// MChartPoint is one calendar day (UTC, YYYY-MM-DD) of the chart series.
type MChartPoint struct {
	Date       string  `json:"date"`
	Commission float64 `json:"commission"`
	Trades     int     `json:"trades"`
	Volume     float64 `json:"volume"`
}

// MCommissionReport is built fresh on every fetch and never updated in place.
type MCommissionReport struct {
	TotalCommission float64        `json:"totalCommission"`
	TotalTrades     int            `json:"totalTrades"`
	ActiveSites     int            `json:"activeSites"`
	AvgVolume       float64        `json:"avgVolume"`
	Sites           []MSiteSummary `json:"sites"`
	ChartData       []MChartPoint  `json:"chartData"`
	GeneratedAt     time.Time      `json:"generatedAt"`
}
