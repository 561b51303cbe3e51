package roster

import (
	"encoding/json"
	"errors"
)

// DefaultPageDelta is how many pages are shown on each side of the current one.
const DefaultPageDelta = 2

// PageItem is either a page number or a collapsed gap.
type PageItem struct {
	Number   int
	Ellipsis bool
}

const ellipsis = "ellipsis"

// MarshalJSON encodes numbers as JSON numbers and gaps as "ellipsis".
func (p PageItem) MarshalJSON() ([]byte, error) {
	if p.Ellipsis {
		return json.Marshal(ellipsis)
	}
	return json.Marshal(p.Number)
}

func (p *PageItem) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != ellipsis {
			return errors.New("page item: unexpected string " + s)
		}
		*p = PageItem{Ellipsis: true}
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*p = PageItem{Number: n}
	return nil
}

// PageNumbers returns the compact page list for a pager: first and last page
// always, delta pages around current, and one ellipsis per collapsed gap.
func PageNumbers(current, totalPages, delta int) []PageItem {
	if totalPages <= 1 {
		return []PageItem{{Number: 1}}
	}
	if delta < 0 {
		delta = 0
	}

	items := []PageItem{{Number: 1}}
	if current-delta > 2 {
		items = append(items, PageItem{Ellipsis: true})
	}
	for i := max(2, current-delta); i <= min(totalPages-1, current+delta); i++ {
		items = append(items, PageItem{Number: i})
	}
	if current+delta < totalPages-1 {
		items = append(items, PageItem{Ellipsis: true})
	}
	return append(items, PageItem{Number: totalPages})
}
