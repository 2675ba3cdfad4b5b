package store

// Page is the paginated result envelope shared by the list views. Ordering
// inside a page is stable (creation time descending); consistency across
// pages under concurrent writes is not guaranteed.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewPage computes the page count from total and limit.
func NewPage[T any](items []T, total, page, limit int) *Page[T] {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	if items == nil {
		items = []T{}
	}
	return &Page[T]{Items: items, Total: total, Page: page, Limit: limit, Pages: pages}
}

// NormalizePage clamps page/limit to usable values. Limit defaults to 20 and
// caps at 100.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
