// Package view derives read-only display models from controller state.
package view

// Page item kinds.
const (
	KindPage     = "page"
	KindEllipsis = "ellipsis"
)

// PageItem is one entry of the pager: a page link or an ellipsis. The
// current page is rendered as plain text, every other page as a link.
type PageItem struct {
	Kind    string `json:"kind"`
	Page    int    `json:"page,omitempty"`
	Current bool   `json:"current,omitempty"`
}

// PageWindow computes the page links to show for page out of lastPage with at
// most windowSize consecutive pages. Pages 1 and lastPage are always present
// as anchors; an ellipsis stands in for the pages between an anchor and the
// window, and only appears when it hides at least one page.
func PageWindow(page, lastPage, windowSize int) []PageItem {
	if lastPage < 2 {
		return nil
	}
	if windowSize < 1 {
		windowSize = 1
	}
	if lastPage <= windowSize {
		return pageRun(1, lastPage, page)
	}

	half := windowSize / 2
	var start int
	switch {
	case page <= half+1:
		start = 1
	case page >= lastPage-half:
		start = lastPage - windowSize + 1
	default:
		start = page - half
	}
	end := start + windowSize - 1

	items := make([]PageItem, 0, windowSize+4)
	if start > 1 {
		items = append(items, pageLink(1, page))
		if start > 2 {
			items = append(items, PageItem{Kind: KindEllipsis})
		}
	}
	items = append(items, pageRun(start, end, page)...)
	if end < lastPage {
		if end < lastPage-1 {
			items = append(items, PageItem{Kind: KindEllipsis})
		}
		items = append(items, pageLink(lastPage, page))
	}
	return items
}

func pageRun(from, to, current int) []PageItem {
	items := make([]PageItem, 0, to-from+1)
	for p := from; p <= to; p++ {
		items = append(items, pageLink(p, current))
	}
	return items
}

func pageLink(p, current int) PageItem {
	return PageItem{Kind: KindPage, Page: p, Current: p == current}
}

// Bounds is the "first to last of total" caption of a result page.
type Bounds struct {
	First int `json:"first"`
	Last  int `json:"last"`
	Total int `json:"total"`
}

// ResultBounds computes the 1-based index range shown on page. An empty
// result yields the zero Bounds.
func ResultBounds(page, limit, itemCount int) Bounds {
	if itemCount <= 0 || page < 1 || limit < 1 {
		return Bounds{}
	}
	first := (page-1)*limit + 1
	if first > itemCount {
		return Bounds{Total: itemCount}
	}
	return Bounds{First: first, Last: min(page*limit, itemCount), Total: itemCount}
}
