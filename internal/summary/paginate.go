package summary

import "strconv"

// Page is one page of results in the response envelope.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// PageLinker builds the reference to page n of the current request.
type PageLinker func(n int) string

// Paginate returns the requested page of items. A missing or non-integer
// page yields page 1; a page outside 1..last yields the last page.
func Paginate[T any](items []T, perPage int, pageParam string, link PageLinker) Page[T] {
	if perPage <= 0 {
		perPage = len(items)
		if perPage == 0 {
			perPage = 1
		}
	}
	numPages := (len(items) + perPage - 1) / perPage
	if numPages == 0 {
		numPages = 1
	}

	page := resolvePage(pageParam, numPages)
	start := (page - 1) * perPage
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}

	results := make([]T, 0, end-start)
	results = append(results, items[start:end]...)

	p := Page[T]{Count: len(items), Results: results}
	if link != nil {
		if page < numPages {
			next := link(page + 1)
			p.Next = &next
		}
		if page > 1 {
			prev := link(page - 1)
			p.Previous = &prev
		}
	}
	return p
}

func resolvePage(pageParam string, numPages int) int {
	if pageParam == "" {
		return 1
	}
	n, err := strconv.Atoi(pageParam)
	if err != nil {
		return 1
	}
	if n < 1 || n > numPages {
		return numPages
	}
	return n
}
