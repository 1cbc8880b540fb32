package models

// Request types, also the msg_type echoed by replies.
const (
	MsgTypeAuthorize  = "authorize"
	MsgTypeCommission = "affiliate_account_add"
	MsgTypeProfit     = "profit_table"
)

// -----------------------------------------------------------------------------
// Outbound
// -----------------------------------------------------------------------------

type MAuthorizeRequest struct {
	Authorize string `json:"authorize"`
	ReqID     int64  `json:"req_id"`
}

type MCommissionRequest struct {
	AffiliateAccountAdd int   `json:"affiliate_account_add"`
	ReqID               int64 `json:"req_id"`
}

type MProfitTableRequest struct {
	ProfitTable int    `json:"profit_table"`
	Description int    `json:"description"`
	Sort        string `json:"sort"`
	DateFrom    string `json:"date_from,omitempty"` // YYYY-MM-DD
	DateTo      string `json:"date_to,omitempty"`   // YYYY-MM-DD
	ReqID       int64  `json:"req_id"`
}

// -----------------------------------------------------------------------------
// Inbound
// -----------------------------------------------------------------------------

// MEnvelope is the part of every reply the correlator needs.
type MEnvelope struct {
	ReqID   *int64            `json:"req_id"`
	MsgType string            `json:"msg_type"`
	Error   *MRemoteErrorBody `json:"error"`
}

type MRemoteErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type MAuthorizeResponse struct {
	MsgType   string    `json:"msg_type"`
	Authorize *MAccount `json:"authorize"`
}

type MCommissionResponse struct {
	MsgType             string             `json:"msg_type"`
	AffiliateAccountAdd *MCommissionResult `json:"affiliate_account_add"`
}

type MCommissionResult struct {
	Transactions []MRawTransaction `json:"transactions"`
}

type MProfitTableResponse struct {
	MsgType     string              `json:"msg_type"`
	ProfitTable *MProfitTableResult `json:"profit_table"`
}

type MProfitTableResult struct {
	Count        int                  `json:"count"`
	Transactions []MProfitTransaction `json:"transactions"`
}
