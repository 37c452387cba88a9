package search

import (
	"errors"
	"strings"
	"unicode"

	"github.com/scrypster/orderscope/pkg/types"
)

var errNoSearcher = errors.New("no remote searcher configured")

// recordIndex looks up local records by the keys a hit may share with them.
// Each map keeps the first record seen for a key.
type recordIndex struct {
	records  []types.Record
	byID     map[string]int
	byKey    map[string]int
	byDigits map[string]int
	byEmail  map[string]int
	keys     []string // lower-cased order numbers, parallel to records
}

func newRecordIndex(records []types.Record) *recordIndex {
	idx := &recordIndex{
		records:  records,
		byID:     make(map[string]int, len(records)),
		byKey:    make(map[string]int, len(records)),
		byDigits: make(map[string]int, len(records)),
		byEmail:  make(map[string]int, len(records)),
		keys:     make([]string, len(records)),
	}
	for i, r := range records {
		putFirst(idx.byID, r.ID, i)
		key := strings.ToLower(strings.TrimSpace(r.OrderNumber))
		idx.keys[i] = key
		putFirst(idx.byKey, key, i)
		putFirst(idx.byDigits, digitsOnly(key), i)
		putFirst(idx.byEmail, strings.ToLower(strings.TrimSpace(r.Email)), i)
	}
	return idx
}

// match finds the local record for hit, trying in order: id, order number
// ignoring case, order number digits, order number substring in either
// direction, email.
//
// The digit and substring steps can pair a hit with the wrong order when
// shortened numbers collide. They are kept because upstream exports format
// order numbers inconsistently ("#1001", "1001", "SO-1001").
func (idx *recordIndex) match(hit types.SearchHit) (int, bool) {
	if i, ok := lookup(idx.byID, hit.ObjectID); ok {
		return i, true
	}

	key := strings.ToLower(strings.TrimSpace(hit.OrderNumber))
	if i, ok := lookup(idx.byKey, key); ok {
		return i, true
	}
	if i, ok := lookup(idx.byDigits, digitsOnly(key)); ok {
		return i, true
	}
	if key != "" {
		for i, k := range idx.keys {
			if k != "" && (strings.Contains(k, key) || strings.Contains(key, k)) {
				return i, true
			}
		}
	}

	return lookup(idx.byEmail, strings.ToLower(strings.TrimSpace(hit.Email)))
}

func lookup(m map[string]int, key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	i, ok := m[key]
	return i, ok
}

func putFirst(m map[string]int, key string, i int) {
	if key == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = i
	}
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
