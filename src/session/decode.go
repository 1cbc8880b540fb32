package session

import (
	"encoding/json"
	"fmt"

	"commission-observer/src/helpers"
	"commission-observer/src/models"
)

// Reply is an inbound message after validation. Exactly one of the payload
// fields is set, selected by Kind.
type Reply struct {
	Kind string

	Account      *models.MAccount
	Transactions []models.MRawTransaction
	ProfitRows   []models.MProfitTransaction
}

// DecodeReply validates raw against the request kind it answers. An absent
// msg_type is taken to be the expected one.
func DecodeReply(raw []byte, expected string) (*Reply, error) {
	var env models.MEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, helpers.NewProtocolError("undecodable reply", err)
	}
	kind := env.MsgType
	if kind == "" {
		kind = expected
	}
	if kind != expected {
		return nil, helpers.NewProtocolError(fmt.Sprintf("expected %s reply, got %s", expected, kind), nil)
	}

	reply := &Reply{Kind: kind}

	switch kind {
	case models.MsgTypeAuthorize:
		var resp models.MAuthorizeResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, helpers.NewProtocolError("malformed authorize reply", err)
		}
		// Any authorize reply without an error counts; the account may be sparse.
		reply.Account = &models.MAccount{}
		if resp.Authorize != nil {
			reply.Account = resp.Authorize
		}

	case models.MsgTypeCommission:
		var resp models.MCommissionResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, helpers.NewProtocolError("malformed commission reply", err)
		}
		reply.Transactions = []models.MRawTransaction{}
		if resp.AffiliateAccountAdd != nil && resp.AffiliateAccountAdd.Transactions != nil {
			reply.Transactions = resp.AffiliateAccountAdd.Transactions
		}

	case models.MsgTypeProfit:
		var resp models.MProfitTableResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, helpers.NewProtocolError("malformed profit table reply", err)
		}
		reply.ProfitRows = []models.MProfitTransaction{}
		if resp.ProfitTable != nil && resp.ProfitTable.Transactions != nil {
			reply.ProfitRows = resp.ProfitTable.Transactions
		}

	default:
		return nil, helpers.NewProtocolError("unsupported reply type "+kind, nil)
	}

	return reply, nil
}
