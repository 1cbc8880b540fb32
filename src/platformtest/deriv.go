package platformtest

import "sync"

// Platform answers authorize, affiliate_account_add and profit_table the way
// the real API shapes its replies.
type Platform struct {
	Token        string
	Account      map[string]interface{}
	Transactions []map[string]interface{}
	ProfitRows   []map[string]interface{}

	// Silent request types get no reply at all.
	Silent map[string]bool

	mu sync.Mutex
}

// Handle is a Handler.
func (p *Platform) Handle(c *Conn, req Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kind := req.Type()
	if p.Silent[kind] {
		return
	}

	reply := map[string]interface{}{
		"req_id":   req.ReqID(),
		"msg_type": kind,
		"echo_req": map[string]interface{}(req),
	}

	switch kind {
	case "authorize":
		if tok, _ := req["authorize"].(string); tok != p.Token {
			reply["error"] = map[string]interface{}{"code": "InvalidToken", "message": "The token is invalid."}
			break
		}
		account := p.Account
		if account == nil {
			account = map[string]interface{}{"loginid": "CR90000000", "currency": "USD", "email": "affiliate@example.com"}
		}
		reply["authorize"] = account

	case "affiliate_account_add":
		reply["affiliate_account_add"] = map[string]interface{}{"transactions": p.Transactions}

	case "profit_table":
		reply["profit_table"] = map[string]interface{}{"count": len(p.ProfitRows), "transactions": p.ProfitRows}

	case "ping":
		reply["ping"] = "pong"

	default:
		reply["error"] = map[string]interface{}{"code": "UnrecognisedRequest", "message": "Unrecognised request."}
	}

	c.Reply(reply)
}
