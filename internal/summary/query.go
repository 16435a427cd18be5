// Package summary holds the request-independent pieces of the summary
// endpoint: query parsing, field projection and pagination.
package summary

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/user/cloudsummary/internal/store"
)

// Query is the parsed form of a summary request. Empty fields are absent.
type Query struct {
	Group   string
	Service string
	From    string
	To      string
	Page    string

	// ToDefaulted is set when the request had no "to" and To holds the
	// instant the request was parsed.
	ToDefaulted bool
}

// dateLayouts are the accepted forms of "from" and "to", tried in order.
var dateLayouts = []string{
	"20060102",
	"2006-01-02",
	store.TimeLayout,
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseQuery extracts the summary parameters from a request query. It
// never fails; a missing "to" is filled in with now. An empty parameter
// counts as absent, but whitespace is a value: "group= " selects the
// group named " " rather than widening to the unfiltered form.
func ParseQuery(values url.Values, now time.Time) Query {
	q := Query{
		Group:   values.Get("group"),
		Service: values.Get("service"),
		From:    values.Get("from"),
		To:      values.Get("to"),
		Page:    values.Get("page"),
	}
	if q.To == "" {
		q.To = now.UTC().Format(store.TimeLayout)
		q.ToDefaulted = true
	}
	return q
}

// HasFrom reports whether the mandatory lower bound was supplied.
func (q Query) HasFrom() bool {
	return q.From != ""
}

// Filter converts the query into a store filter, parsing the time bounds.
func (q Query) Filter() (store.SummaryFilter, error) {
	if !q.HasFrom() {
		return store.SummaryFilter{}, fmt.Errorf("from is required")
	}
	from, err := parseDate(q.From)
	if err != nil {
		return store.SummaryFilter{}, fmt.Errorf("invalid from: %w", err)
	}
	to, err := parseDate(q.To)
	if err != nil {
		return store.SummaryFilter{}, fmt.Errorf("invalid to: %w", err)
	}
	return store.SummaryFilter{
		Group:   q.Group,
		Service: q.Service,
		From:    from,
		To:      to,
	}, nil
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", v)
}
