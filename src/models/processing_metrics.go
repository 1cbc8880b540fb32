package models

// MRefreshMetrics describes the last dashboard refresh.
type MRefreshMetrics struct {
	RefreshTimeSeconds float64 `json:"refresh_time_seconds"`
	Transactions       int     `json:"transactions"`
	ProfitTableDays    int     `json:"profit_table_days"`
}

// MServiceStatus is what health endpoints report.
type MServiceStatus struct {
	SessionState string `json:"session_state"`
	LoginID      string `json:"loginid,omitempty"`
	LastRefresh  int64  `json:"last_refresh"`
	LastError    string `json:"last_error,omitempty"`
}
