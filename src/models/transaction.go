package models

// MRawTransaction is one affiliate transaction from the commission query.
type MRawTransaction struct {
	ClientID   FlexString `json:"client_id"`
	Commission FlexFloat  `json:"commission"`
	CreatedAt  FlexTime   `json:"created_at"`
	Amount     FlexFloat  `json:"amount"`
	Token      string     `json:"token"`
}

// MProfitTransaction is one row of the profit table.
// PurchaseTime and SellTime are Unix seconds.
type MProfitTransaction struct {
	ContractID    FlexString `json:"contract_id"`
	TransactionID FlexString `json:"transaction_id"`
	PurchaseTime  int64      `json:"purchase_time"`
	SellTime      int64      `json:"sell_time"`
	BuyPrice      FlexFloat  `json:"buy_price"`
	SellPrice     FlexFloat  `json:"sell_price"`
	Payout        FlexFloat  `json:"payout"`
	Shortcode     string     `json:"shortcode"`
	Longcode      string     `json:"longcode"`
	AppID         FlexString `json:"app_id"`
}
