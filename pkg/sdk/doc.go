// Package agentpay is a Go client for the agentpay services: the token
// authority, the data gateway and the task orchestrator.
//
// One Client talks to one base URL. A deployment running every role in one
// process serves all three APIs from the same address.
//
// # Paying for premium data
//
// The gateway answers a detail request without a token with a price quote.
// Pay the quote with a token from the authority, then repeat the request with
// the token. The repeat is served without a second charge.
//
//	client, _ := agentpay.New("http://localhost:8080", agentpay.WithAPIKey(key))
//	tok, _ := client.Authority().IssueToken(ctx, 100, "agent-1")
//
//	res, _ := client.Gateway().Detail(ctx, "acme", "")
//	if res.Kind == agentpay.DetailPaymentRequired {
//	    _, _ = client.Gateway().Pay(ctx, agentpay.PayRequest{
//	        TokenID: tok.TokenID, Amount: res.Quote.Price, QuoteID: res.Quote.ID,
//	    })
//	    res, _ = client.Gateway().Detail(ctx, "acme", tok.TokenID)
//	}
//
// # Research tasks
//
//	id, _ := client.Tasks().Create(ctx, agentpay.TaskRequest{
//	    Theme: "ACME", Budget: 50, OwnerIdentity: "agent-1",
//	})
//	task, _ := client.Tasks().Get(ctx, id)
package agentpay
