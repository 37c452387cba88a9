package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/scrypster/orderscope/pkg/types"
)

// dateLayouts are the timestamp formats seen in upstream exports.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeStats counts the outcome of a normalization pass.
type NormalizeStats struct {
	Kept    int
	Dropped int
}

// chunkPayload is the body of a chunk response.
type chunkPayload struct {
	Data json.RawMessage `json:"data"`
}

// decodeChunkPayload parses {"data": [...]} into records. A body without a
// data array yields no records and malformed=true; it is never an error
// for the caller.
func decodeChunkPayload(body []byte, now time.Time) (records []types.Record, stats NormalizeStats, malformed bool) {
	var payload chunkPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, stats, true
	}
	var items []json.RawMessage
	if len(payload.Data) == 0 || json.Unmarshal(payload.Data, &items) != nil {
		return nil, stats, true
	}
	records, stats = NormalizeRecords(items, now)
	return records, stats, false
}

// NormalizeRecords maps raw items onto Records. Items that cannot be mapped
// are dropped individually; the rest proceed.
func NormalizeRecords(items []json.RawMessage, now time.Time) ([]types.Record, NormalizeStats) {
	out := make([]types.Record, 0, len(items))
	var stats NormalizeStats
	for _, item := range items {
		m, err := decodeObject(item)
		if err != nil {
			stats.Dropped++
			continue
		}
		rec, err := NormalizeRecord(m, now)
		if err != nil {
			stats.Dropped++
			continue
		}
		out = append(out, rec)
		stats.Kept++
	}
	return out, stats
}

// NormalizeRecord maps one raw record onto the Record shape. Absent fields
// take defaults: empty string, zero, now for CreatedAt, CreatedAt for
// UpdatedAt and the documented default statuses. A record that fails
// Record.Validate, such as one with neither id nor order number, is
// rejected.
func NormalizeRecord(m map[string]any, now time.Time) (types.Record, error) {
	orderNumber := firstString(m, "name", "order_number", "orderNumber", "number")
	id := firstString(m, "id", "order_id", "orderId", "objectID", "_id")
	if id == "" && orderNumber != "" {
		id = "order-" + orderNumber
	}

	created, ok := firstTime(m, "created_at", "createdAt", "processed_at")
	if !ok {
		created = now
	}
	updated, ok := firstTime(m, "updated_at", "updatedAt")
	if !ok {
		updated = created
	}

	rec := types.Record{
		ID:                id,
		OrderNumber:       orderNumber,
		CustomerName:      customerName(m),
		Email:             firstNonEmpty(firstString(m, "email", "contact_email", "customerEmail"), nestedString(m, "customer", "email")),
		Total:             firstFloat(m, "total_price", "total", "totalPrice", "current_total_price", "amount"),
		Currency:          firstString(m, "currency", "presentment_currency"),
		CreatedAt:         created,
		UpdatedAt:         updated,
		Tags:              tagsOf(m["tags"]),
		FinancialStatus:   types.ParseFinancialStatus(firstString(m, "financial_status", "financialStatus")),
		FulfillmentStatus: types.ParseFulfillmentStatus(firstString(m, "fulfillment_status", "fulfillmentStatus")),
		Vendor:            firstString(m, "vendor"),
		ItemCount:         int(firstFloat(m, "item_count", "itemCount")),
	}

	if items, ok := m["line_items"].([]any); ok {
		if rec.ItemCount == 0 {
			rec.ItemCount = len(items)
		}
		if rec.Vendor == "" && len(items) > 0 {
			if first, ok := items[0].(map[string]any); ok {
				rec.Vendor = firstString(first, "vendor")
			}
		}
	}

	if err := rec.Validate(); err != nil {
		return types.Record{}, fmt.Errorf("invalid record: %w", err)
	}
	return rec, nil
}

// hitFromObject maps a raw search hit onto SearchHit using the same field
// aliases as record normalization.
func hitFromObject(m map[string]any) types.SearchHit {
	hit := types.SearchHit{
		ObjectID:          firstString(m, "objectID", "id", "order_id"),
		OrderNumber:       firstString(m, "orderNumber", "name", "order_number", "number"),
		CustomerName:      customerName(m),
		Email:             firstNonEmpty(firstString(m, "email", "contact_email", "customerEmail"), nestedString(m, "customer", "email")),
		Total:             firstFloat(m, "total", "total_price", "totalPrice", "amount"),
		Currency:          firstString(m, "currency"),
		CreatedAt:         firstString(m, "createdAt", "created_at"),
		FinancialStatus:   firstString(m, "financialStatus", "financial_status"),
		FulfillmentStatus: firstString(m, "fulfillmentStatus", "fulfillment_status"),
		Tags:              tagsOf(m["tags"]),
		Vendor:            firstString(m, "vendor"),
	}
	if hr, ok := m["_highlightResult"].(map[string]any); ok {
		hit.Highlights = make(map[string]string)
		collectHighlights(hr, "", hit.Highlights)
		if len(hit.Highlights) == 0 {
			hit.Highlights = nil
		}
	}
	return hit
}

// highlightFields maps index attribute names onto Record JSON names.
var highlightFields = map[string]string{
	"name":                "orderNumber",
	"order_number":        "orderNumber",
	"email":               "email",
	"customer.email":      "email",
	"customer_name":       "customerName",
	"customer.first_name": "customerName",
	"customer.last_name":  "customerName",
	"financial_status":    "financialStatus",
	"fulfillment_status":  "fulfillmentStatus",
}

// collectHighlights flattens {"attr": {"value": "...", "matchLevel": "full"}}
// keeping only attributes that actually matched.
func collectHighlights(node map[string]any, prefix string, out map[string]string) {
	for key, v := range node {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		child, ok := v.(map[string]any)
		if !ok {
			continue
		}
		value, hasValue := child["value"].(string)
		if !hasValue {
			collectHighlights(child, path, out)
			continue
		}
		if level, _ := child["matchLevel"].(string); level == "none" {
			continue
		}
		field := path
		if mapped, ok := highlightFields[path]; ok {
			field = mapped
		}
		if existing, ok := out[field]; ok {
			value = existing + " " + value
		}
		out[field] = value
	}
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return m, nil
}

func customerName(m map[string]any) string {
	if name := firstString(m, "customerName", "customer_name"); name != "" {
		return name
	}
	if c, ok := m["customer"].(map[string]any); ok {
		full := strings.TrimSpace(firstString(c, "first_name") + " " + firstString(c, "last_name"))
		if full != "" {
			return full
		}
		if name := firstString(c, "name"); name != "" {
			return name
		}
	}
	for _, addr := range []string{"billing_address", "shipping_address"} {
		if name := nestedString(m, addr, "name"); name != "" {
			return name
		}
	}
	return ""
}

func nestedString(m map[string]any, obj, key string) string {
	if child, ok := m[obj].(map[string]any); ok {
		return firstString(child, key)
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// firstString returns the first key holding a non-empty scalar, rendered
// as a string.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

func firstFloat(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f
			}
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func firstTime(m map[string]any, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if t, ok := ParseTime(v); ok {
				return t, true
			}
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return fromEpoch(n), true
			}
		case float64:
			return fromEpoch(int64(v)), true
		}
	}
	return time.Time{}, false
}

// ParseTime parses the timestamp formats seen in upstream exports.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromEpoch(n), true
	}
	return time.Time{}, false
}

// fromEpoch accepts seconds or milliseconds.
func fromEpoch(n int64) time.Time {
	if n > 1e11 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func tagsOf(v any) []string {
	var raw []string
	switch t := v.(type) {
	case string:
		raw = strings.Split(t, ",")
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	var tags []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			tags = append(tags, s)
		}
	}
	return tags
}
