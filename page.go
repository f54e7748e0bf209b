// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package navqc

// PageInfo describes the window returned by Page
type PageInfo struct {
	Page  int // Page actually returned, 1-based, clamped to [1, Pages]
	Size  int
	Pages int // Number of pages, at least 1
	Total int
	First int // Index of the first item on the page
	Last  int // Index one past the last item
}

// Page returns the items of one page. Pages count from 1; page and size are clamped
// to valid values so the call never fails. The items are not copied.
func Page[T any](items []T, page, size int) ([]T, PageInfo) {
	size = max(size, 1)
	total := len(items)
	pages := max((total+size-1)/size, 1)
	page = clamp(page, 1, pages)
	first := min((page-1)*size, total)
	last := min(first+size, total)
	return items[first:last], PageInfo{
		Page:  page,
		Size:  size,
		Pages: pages,
		Total: total,
		First: first,
		Last:  last,
	}
}
