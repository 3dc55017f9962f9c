// Package pager chunks a subscriber's subscription list into selectable
// pages for the removal flow. It is a pure computation: no state is carried
// between calls beyond the inputs.
package pager

import "sort"

const (
	// GroupSize is the maximum number of selectable items per control.
	GroupSize = 25
	// ControlsPerPage is the maximum number of select controls per page.
	ControlsPerPage = 4
)

// Item is one subscription record enriched with display names for sorting
// and labelling.
type Item struct {
	Tenant     string
	TenantName string
	Room       string
	RoomName   string
	Threshold  int
}

// Page is one renderable page of the removal flow.
type Page struct {
	Index  int
	Count  int
	Chunks [][]Item

	HasPrev bool
	HasNext bool
}

// Sort orders items by tenant display name, then room display name, then
// threshold as a number (so 2 sorts before 10). IDs break display-name ties
// to keep the order stable.
func Sort(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.TenantName != b.TenantName {
			return a.TenantName < b.TenantName
		}
		if a.RoomName != b.RoomName {
			return a.RoomName < b.RoomName
		}
		if a.Threshold != b.Threshold {
			return a.Threshold < b.Threshold
		}
		if a.Tenant != b.Tenant {
			return a.Tenant < b.Tenant
		}
		return a.Room < b.Room
	})
}

// ChunkCount returns how many selectable groups n records occupy.
func ChunkCount(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + GroupSize - 1) / GroupSize
}

// PageCount returns how many pages n records occupy.
//
// Exactly five chunks collapse onto a single page: a page has room for one
// extra control beyond the four selects once no navigation buttons are
// needed, and five chunks is the only count where that saves a page.
func PageCount(n int) int {
	chunks := ChunkCount(n)
	if chunks == 0 {
		return 0
	}
	if chunks == 5 {
		return 1
	}
	return (chunks + ControlsPerPage - 1) / ControlsPerPage
}

// Build computes the page with the given 0-based index. Out-of-range
// indexes clamp to the nearest valid page.
func Build(items []Item, page int) Page {
	n := len(items)
	pages := PageCount(n)
	if pages == 0 {
		return Page{}
	}
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}

	idx := page * ControlsPerPage * GroupSize
	var chunks [][]Item
	take := func() {
		end := idx + GroupSize
		if end > n {
			end = n
		}
		chunks = append(chunks, items[idx:end])
		idx = end
	}
	for idx < n && len(chunks) < ControlsPerPage {
		take()
	}
	// The single-page five-chunk case carries its fifth group in the slot
	// the navigation buttons would otherwise use.
	if pages == 1 && idx < n {
		take()
	}

	return Page{
		Index:   page,
		Count:   pages,
		Chunks:  chunks,
		HasPrev: page > 0,
		HasNext: page < pages-1,
	}
}
