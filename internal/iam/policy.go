package iam

import "strings"

// AllowList is the fixed set of identities allowed to read summaries.
// It is never modified after construction, so concurrent use is safe.
type AllowList struct {
	ids map[Identity]struct{}
}

func NewAllowList(ids []string) *AllowList {
	al := &AllowList{ids: make(map[Identity]struct{}, len(ids))}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			al.ids[Identity(id)] = struct{}{}
		}
	}
	return al
}

// Allows reports whether id is on the list.
func (a *AllowList) Allows(id Identity) bool {
	if a == nil {
		return false
	}
	_, ok := a.ids[id]
	return ok
}

func (a *AllowList) Len() int {
	if a == nil {
		return 0
	}
	return len(a.ids)
}
