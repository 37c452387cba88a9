// Package query parses the one-line filter language used to narrow a page
// of orders, and evaluates parsed conditions against records.
//
// Examples:
//
//	paid AND >1000
//	customer:"jane doe" OR email:acme.com
//	created >= 2024-06-01 AND status != refunded
//	2024-06-11
package query

import (
	"strconv"
	"strings"

	"github.com/scrypster/orderscope/pkg/types"
)

// ColumnAll matches against every searchable field at once.
const ColumnAll = "all"

// Canonical column names, matching Record JSON field names.
const (
	ColumnID                = "id"
	ColumnOrderNumber       = "orderNumber"
	ColumnCustomerName      = "customerName"
	ColumnEmail             = "email"
	ColumnTotal             = "total"
	ColumnCreatedAt         = "createdAt"
	ColumnUpdatedAt         = "updatedAt"
	ColumnFinancialStatus   = "financialStatus"
	ColumnFulfillmentStatus = "fulfillmentStatus"
	ColumnTags              = "tags"
	ColumnVendor            = "vendor"
	ColumnCurrency          = "currency"
	ColumnItemCount         = "itemCount"
)

// Kind selects comparison semantics for a column.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindDate
	KindArray
	KindAll
)

// columnAliases maps lower-cased user spellings onto canonical columns.
var columnAliases = map[string]string{
	"id":                ColumnID,
	"order":             ColumnOrderNumber,
	"ordernumber":       ColumnOrderNumber,
	"number":            ColumnOrderNumber,
	"customer":          ColumnCustomerName,
	"customername":      ColumnCustomerName,
	"name":              ColumnCustomerName,
	"email":             ColumnEmail,
	"mail":              ColumnEmail,
	"total":             ColumnTotal,
	"amount":            ColumnTotal,
	"price":             ColumnTotal,
	"created":           ColumnCreatedAt,
	"createdat":         ColumnCreatedAt,
	"date":              ColumnCreatedAt,
	"updated":           ColumnUpdatedAt,
	"updatedat":         ColumnUpdatedAt,
	"status":            ColumnFinancialStatus,
	"financial":         ColumnFinancialStatus,
	"financialstatus":   ColumnFinancialStatus,
	"payment":           ColumnFinancialStatus,
	"fulfillment":       ColumnFulfillmentStatus,
	"fulfillmentstatus": ColumnFulfillmentStatus,
	"shipping":          ColumnFulfillmentStatus,
	"tag":               ColumnTags,
	"tags":              ColumnTags,
	"vendor":            ColumnVendor,
	"currency":          ColumnCurrency,
	"items":             ColumnItemCount,
	"itemcount":         ColumnItemCount,
	"all":               ColumnAll,
}

var columnKinds = map[string]Kind{
	ColumnTotal:     KindNumber,
	ColumnItemCount: KindNumber,
	ColumnCreatedAt: KindDate,
	ColumnUpdatedAt: KindDate,
	ColumnTags:      KindArray,
	ColumnAll:       KindAll,
}

// LookupColumn maps a user-typed column name onto its canonical name.
func LookupColumn(name string) (string, bool) {
	col, ok := columnAliases[strings.ToLower(strings.TrimSpace(name))]
	return col, ok
}

// KindOf returns the comparison kind of a canonical column.
func KindOf(column string) Kind {
	if k, ok := columnKinds[column]; ok {
		return k
	}
	return KindString
}

// StringValue renders a scalar column of r for string comparison.
func StringValue(r types.Record, column string) string {
	switch column {
	case ColumnID:
		return r.ID
	case ColumnOrderNumber:
		return r.OrderNumber
	case ColumnCustomerName:
		return r.CustomerName
	case ColumnEmail:
		return r.Email
	case ColumnFinancialStatus:
		return string(r.FinancialStatus)
	case ColumnFulfillmentStatus:
		return string(r.FulfillmentStatus)
	case ColumnVendor:
		return r.Vendor
	case ColumnCurrency:
		return r.Currency
	case ColumnTotal, ColumnItemCount:
		v, _ := NumberValue(r, column)
		return formatNumber(v)
	case ColumnCreatedAt:
		return r.CreatedAt.UTC().Format(dayLayout)
	case ColumnUpdatedAt:
		return r.UpdatedAt.UTC().Format(dayLayout)
	case ColumnTags:
		return strings.Join(r.Tags, ", ")
	}
	return ""
}

// NumberValue returns a numeric column of r.
func NumberValue(r types.Record, column string) (float64, bool) {
	switch column {
	case ColumnTotal:
		return r.Total, true
	case ColumnItemCount:
		return float64(r.ItemCount), true
	}
	return 0, false
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
