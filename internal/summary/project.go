package summary

import "github.com/user/cloudsummary/internal/store"

// Row is a summary row restricted to the returned fields.
type Row map[string]any

// FieldSet is the set of column names a response may carry.
type FieldSet map[string]struct{}

func NewFieldSet(names []string) FieldSet {
	fs := make(FieldSet, len(names))
	for _, n := range names {
		fs[n] = struct{}{}
	}
	return fs
}

func (fs FieldSet) Has(name string) bool {
	_, ok := fs[name]
	return ok
}

// Project keeps, for every row, only the columns named in allowed.
// Columns outside the set are dropped, not nulled.
func Project(rs *store.ResultSet, allowed FieldSet) []Row {
	if rs == nil {
		return []Row{}
	}
	keep := make([]int, 0, len(rs.Columns))
	for i, c := range rs.Columns {
		if allowed.Has(c) {
			keep = append(keep, i)
		}
	}
	out := make([]Row, 0, len(rs.Rows))
	for _, values := range rs.Rows {
		row := make(Row, len(keep))
		for _, i := range keep {
			if i < len(values) {
				row[rs.Columns[i]] = values[i]
			}
		}
		out = append(out, row)
	}
	return out
}
