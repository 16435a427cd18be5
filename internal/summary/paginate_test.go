package summary

import (
	"fmt"
	"testing"
)

func ints(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func linker(n int) string { return fmt.Sprintf("page-%d", n) }

func TestPaginate(t *testing.T) {
	tests := []struct {
		name      string
		items     int
		perPage   int
		page      string
		wantFirst int
		wantLen   int
		wantNext  string
		wantPrev  string
	}{
		{"missing page", 25, 10, "", 1, 10, "page-2", ""},
		{"second page", 25, 10, "2", 11, 10, "page-3", "page-1"},
		{"last page", 25, 10, "3", 21, 5, "", "page-2"},
		{"page too high", 25, 10, "9999", 21, 5, "", "page-2"},
		{"page zero", 25, 10, "0", 21, 5, "", "page-2"},
		{"negative page", 25, 10, "-1", 21, 5, "", "page-2"},
		{"non numeric", 25, 10, "abc", 1, 10, "page-2", ""},
		{"float", 25, 10, "2.0", 1, 10, "page-2", ""},
		{"single page", 2, 10, "", 1, 2, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paginate(ints(tt.items), tt.perPage, tt.page, linker)
			if p.Count != tt.items {
				t.Errorf("count = %d, want %d", p.Count, tt.items)
			}
			if len(p.Results) != tt.wantLen {
				t.Fatalf("results = %d, want %d", len(p.Results), tt.wantLen)
			}
			if p.Results[0] != tt.wantFirst {
				t.Errorf("first = %d, want %d", p.Results[0], tt.wantFirst)
			}
			if got := deref(p.Next); got != tt.wantNext {
				t.Errorf("next = %q, want %q", got, tt.wantNext)
			}
			if got := deref(p.Previous); got != tt.wantPrev {
				t.Errorf("previous = %q, want %q", got, tt.wantPrev)
			}
		})
	}
}

func TestPaginateEmpty(t *testing.T) {
	p := Paginate([]int{}, 10, "5", linker)
	if p.Count != 0 || p.Results == nil || len(p.Results) != 0 {
		t.Errorf("empty page = %+v", p)
	}
	if p.Next != nil || p.Previous != nil {
		t.Errorf("empty page should have no links: %+v", p)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
