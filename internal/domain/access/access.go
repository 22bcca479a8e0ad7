package access

import (
	"github.com/kailas-cloud/agentpay/internal/domain/payment"
	"github.com/kailas-cloud/agentpay/internal/domain/quote"
	"github.com/kailas-cloud/agentpay/internal/domain/resource"
)

// Kind tags the outcome of a premium detail request.
type Kind string

const (
	KindServed            Kind = "served"
	KindPaymentRequired   Kind = "payment_required"
	KindAuthFailed        Kind = "authentication_failed"
	KindInsufficientFunds Kind = "insufficient_funds"
)

// Result is the tagged outcome of Detail. Only the fields of its Kind are set.
type Result struct {
	kind      Kind
	resource  resource.Resource
	payment   *payment.Record
	quote     quote.Quote
	reason    string
	required  int64
	available int64
}

// Served is a delivered resource; rec is nil for free resources.
func Served(res resource.Resource, rec *payment.Record) Result {
	return Result{kind: KindServed, resource: res, payment: rec}
}

// PaymentRequired carries the price quote the caller must pay.
func PaymentRequired(q quote.Quote) Result {
	return Result{kind: KindPaymentRequired, quote: q}
}

// AuthFailed is a rejected payment token.
func AuthFailed(reason string) Result {
	return Result{kind: KindAuthFailed, reason: reason}
}

// InsufficientFunds is a token whose balance cannot cover the price.
func InsufficientFunds(required, available int64) Result {
	if available < 0 {
		available = 0
	}
	return Result{kind: KindInsufficientFunds, required: required, available: available}
}

// Kind returns the outcome tag.
func (r Result) Kind() Kind { return r.kind }

// Resource returns the served resource (KindServed).
func (r Result) Resource() resource.Resource { return r.resource }

// Payment returns the charge that paid for the resource, or nil (KindServed).
func (r Result) Payment() *payment.Record { return r.payment }

// Quote returns the price quote (KindPaymentRequired).
func (r Result) Quote() quote.Quote { return r.quote }

// Reason returns why authentication failed (KindAuthFailed).
func (r Result) Reason() string { return r.reason }

// Required returns the price that could not be covered (KindInsufficientFunds).
func (r Result) Required() int64 { return r.required }

// Available returns the balance at rejection time (KindInsufficientFunds).
func (r Result) Available() int64 { return r.available }
