package models

// -----------------------------------------------------------------------------
// Hub payload pushed to dashboard browsers
// -----------------------------------------------------------------------------

type MLatestData struct {
	Type         string             `json:"type"` // "INITIAL" or "UPDATE"
	Report       *MCommissionReport `json:"report"`
	SnapshotID   string             `json:"snapshot_id,omitempty"`
	SessionState string             `json:"session_state"`
	Timestamp    int64              `json:"timestamp"`
	Metrics      MRefreshMetrics    `json:"refresh_metrics"`
}

// -----------------------------------------------------------------------------
// SubscribeCommand for client messages
// -----------------------------------------------------------------------------

type MSubscribeCommand struct {
	Command    string `json:"command"`
	ClientType string `json:"clientType"`
}
