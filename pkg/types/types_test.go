package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/orderscope/pkg/types"
)

func TestParseFinancialStatus(t *testing.T) {
	tests := []struct {
		in   string
		want types.FinancialStatus
	}{
		{"paid", types.FinancialPaid},
		{"PAID", types.FinancialPaid},
		{" Partially Refunded ", types.FinancialPartiallyRefunded},
		{"partially-paid", types.FinancialPartiallyPaid},
		{"refund", types.FinancialRefunded},
		{"cancelled", types.FinancialVoided},
		{"", types.DefaultFinancialStatus},
		{"chargeback", types.DefaultFinancialStatus},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, types.ParseFinancialStatus(tt.in))
		})
	}
}

func TestParseFulfillmentStatus(t *testing.T) {
	tests := []struct {
		in   string
		want types.FulfillmentStatus
	}{
		{"fulfilled", types.FulfillmentFulfilled},
		{"Shipped", types.FulfillmentFulfilled},
		{"partially fulfilled", types.FulfillmentPartial},
		{"null", types.FulfillmentUnfulfilled},
		{"", types.FulfillmentUnfulfilled},
		{"lost in transit", types.DefaultFulfillmentStatus},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, types.ParseFulfillmentStatus(tt.in))
		})
	}
}

func TestRecordValidate(t *testing.T) {
	r := types.Record{
		ID:                "1",
		FinancialStatus:   types.FinancialPaid,
		FulfillmentStatus: types.FulfillmentFulfilled,
	}
	assert.NoError(t, r.Validate())

	r.ID = "  "
	assert.ErrorIs(t, r.Validate(), types.ErrEmptyID)

	r.ID = "1"
	r.FinancialStatus = "weird"
	assert.Error(t, r.Validate())
}

func TestRecordClone_DoesNotShare(t *testing.T) {
	orig := types.Record{
		ID:         "1",
		Tags:       []string{"vip"},
		Highlights: map[string]string{"email": "<em>jane</em>"},
	}

	cp := orig.Clone()
	cp.Tags[0] = "changed"
	cp.Highlights["email"] = "changed"

	assert.Equal(t, "vip", orig.Tags[0])
	assert.Equal(t, "<em>jane</em>", orig.Highlights["email"])
}

func TestChunkLen_Nil(t *testing.T) {
	var c *types.Chunk
	assert.Equal(t, 0, c.Len())
}
