package ledger

import "strings"

// Record is the permanent per-identity ledger of purchased and consumed
// generation loops. Both counters are monotone; Remaining never goes below
// zero while the backing store honors its atomicity contract.
type Record struct {
	Identity string `json:"identity"`
	Granted  int64  `json:"granted"`
	Used     int64  `json:"used"`
}

// Remaining returns the loops still available to consume.
func (r Record) Remaining() int64 { return r.Granted - r.Used }

// Entitled reports whether the identity has ever received a grant,
// independent of whether any loops remain.
func (r Record) Entitled() bool { return r.Granted > 0 }

// ConsumeResult is returned by a successful TryConsume.
type ConsumeResult struct {
	Remaining int64 `json:"remaining"`
}

// NormalizeIdentity lowercases and trims an identity (email). The Service
// applies it on every entry point; stores receive already-normalized keys.
func NormalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
