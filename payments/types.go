// Package payments defines the provider-neutral shape of a verified purchase.
// Provider subpackages (lemonsqueezy, stripe) verify their own wire formats
// and normalize them into a Purchase before anything touches the ledger.
package payments

// DefaultLoopsPerPurchase is how many generation loops a single purchase
// grants when the caller does not override the policy.
const DefaultLoopsPerPurchase int64 = 2

// Purchase is a verified, provider-authenticated purchase event. EventID is
// the provider's delivery id and is the dedup key; Email is the buyer
// identity, not yet normalized.
type Purchase struct {
	EventID string
	Email   string
	Loops   int64
}
