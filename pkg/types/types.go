// Package types defines the core data structures for orderscope.
// These types represent orders as records of a chunked remote dataset,
// the chunks that carry them, remote search hits and parsed query
// conditions.
package types

import "strings"

// FinancialStatus is the payment state of an order.
type FinancialStatus string

// FulfillmentStatus is the shipping state of an order.
type FulfillmentStatus string

// Financial status constants
const (
	FinancialPaid              FinancialStatus = "paid"
	FinancialPending           FinancialStatus = "pending"
	FinancialAuthorized        FinancialStatus = "authorized"
	FinancialPartiallyPaid     FinancialStatus = "partially_paid"
	FinancialRefunded          FinancialStatus = "refunded"
	FinancialPartiallyRefunded FinancialStatus = "partially_refunded"
	FinancialVoided            FinancialStatus = "voided"
)

// Fulfillment status constants
const (
	FulfillmentFulfilled   FulfillmentStatus = "fulfilled"
	FulfillmentUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentPartial     FulfillmentStatus = "partial"
	FulfillmentRestocked   FulfillmentStatus = "restocked"
)

// DefaultFinancialStatus is used for empty or unrecognised payment states.
const DefaultFinancialStatus = FinancialPending

// DefaultFulfillmentStatus is used for empty or unrecognised shipping states.
// Upstream exports leave the field null until the first shipment.
const DefaultFulfillmentStatus = FulfillmentUnfulfilled

// ValidFinancialStatuses lists the closed payment vocabulary.
var ValidFinancialStatuses = []FinancialStatus{
	FinancialPaid,
	FinancialPending,
	FinancialAuthorized,
	FinancialPartiallyPaid,
	FinancialRefunded,
	FinancialPartiallyRefunded,
	FinancialVoided,
}

// ValidFulfillmentStatuses lists the closed shipping vocabulary.
var ValidFulfillmentStatuses = []FulfillmentStatus{
	FulfillmentFulfilled,
	FulfillmentUnfulfilled,
	FulfillmentPartial,
	FulfillmentRestocked,
}

var financialAliases = map[string]FinancialStatus{
	"refund":         FinancialRefunded,
	"void":           FinancialVoided,
	"cancelled":      FinancialVoided,
	"canceled":       FinancialVoided,
	"partial_refund": FinancialPartiallyRefunded,
	"partial":        FinancialPartiallyPaid,
	"unpaid":         FinancialPending,
}

var fulfillmentAliases = map[string]FulfillmentStatus{
	"shipped":             FulfillmentFulfilled,
	"delivered":           FulfillmentFulfilled,
	"complete":            FulfillmentFulfilled,
	"partially_fulfilled": FulfillmentPartial,
	"partially_shipped":   FulfillmentPartial,
	"unshipped":           FulfillmentUnfulfilled,
	"null":                FulfillmentUnfulfilled,
	"restock":             FulfillmentRestocked,
}

// ParseFinancialStatus maps a free-form payment state onto the closed
// vocabulary. It never fails: unknown values map to DefaultFinancialStatus.
func ParseFinancialStatus(s string) FinancialStatus {
	key := statusKey(s)
	for _, v := range ValidFinancialStatuses {
		if string(v) == key {
			return v
		}
	}
	if v, ok := financialAliases[key]; ok {
		return v
	}
	return DefaultFinancialStatus
}

// ParseFulfillmentStatus maps a free-form shipping state onto the closed
// vocabulary. Unknown values map to DefaultFulfillmentStatus.
func ParseFulfillmentStatus(s string) FulfillmentStatus {
	key := statusKey(s)
	for _, v := range ValidFulfillmentStatuses {
		if string(v) == key {
			return v
		}
	}
	if v, ok := fulfillmentAliases[key]; ok {
		return v
	}
	return DefaultFulfillmentStatus
}

// IsValidFinancialStatus reports whether s is already in canonical form.
func IsValidFinancialStatus(s string) bool {
	for _, v := range ValidFinancialStatuses {
		if string(v) == s {
			return true
		}
	}
	return false
}

// IsValidFulfillmentStatus reports whether s is already in canonical form.
func IsValidFulfillmentStatus(s string) bool {
	for _, v := range ValidFulfillmentStatuses {
		if string(v) == s {
			return true
		}
	}
	return false
}

func statusKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
