package types

import (
	"errors"
	"strings"
	"time"
)

// ErrEmptyID is returned by Validate for a record without an identifier.
var ErrEmptyID = errors.New("record id is required")

// Record is a single order of the dataset.
type Record struct {
	ID                string            `json:"id"`                    // Stable identifier, never empty
	OrderNumber       string            `json:"orderNumber"`           // Natural key (e.g. "#1001"), unique in practice only
	CustomerName      string            `json:"customerName"`          // Contact display name
	Email             string            `json:"email"`                 // Contact identity, last-resort reconciliation key
	Total             float64           `json:"total"`                 // Monetary total
	Currency          string            `json:"currency,omitempty"`    // ISO currency code
	CreatedAt         time.Time         `json:"createdAt"`             // Creation timestamp
	UpdatedAt         time.Time         `json:"updatedAt"`             // Last update timestamp
	Tags              []string          `json:"tags,omitempty"`        // Free-form tags
	FinancialStatus   FinancialStatus   `json:"financialStatus"`       // Payment state
	FulfillmentStatus FulfillmentStatus `json:"fulfillmentStatus"`     // Shipping state
	Vendor            string            `json:"vendor,omitempty"`      // Vendor of the first line item
	ItemCount         int               `json:"itemCount"`             // Number of line items
	Highlights        map[string]string `json:"highlights,omitempty"`  // Search emphasis per field, set on merged search results
	Synthesized       bool              `json:"synthesized,omitempty"` // Built from a search hit without a local match
}

// Validate checks the record invariants.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrEmptyID
	}
	if !IsValidFinancialStatus(string(r.FinancialStatus)) {
		return errors.New("invalid financial status: " + string(r.FinancialStatus))
	}
	if !IsValidFulfillmentStatus(string(r.FulfillmentStatus)) {
		return errors.New("invalid fulfillment status: " + string(r.FulfillmentStatus))
	}
	return nil
}

// Clone returns a copy that shares no slices or maps with r.
func (r Record) Clone() Record {
	if r.Tags != nil {
		r.Tags = append([]string(nil), r.Tags...)
	}
	if r.Highlights != nil {
		h := make(map[string]string, len(r.Highlights))
		for k, v := range r.Highlights {
			h[k] = v
		}
		r.Highlights = h
	}
	return r
}

// Chunk is a fixed-size slice of the remote dataset. Chunks are never
// mutated after construction; a refresh produces a new Chunk.
type Chunk struct {
	Index     int       `json:"index"`
	Records   []Record  `json:"records"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Len returns the number of records in the chunk.
func (c *Chunk) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Records)
}
