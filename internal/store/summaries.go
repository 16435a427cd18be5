package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"
)

// SummaryView is the pre-aggregated per-day view the service reads.
const SummaryView = "VCloudSummaries"

// TimeLayout is how time bounds are sent to the data source.
const TimeLayout = "2006-01-02 15:04:05"

// SummaryFilter selects summary rows. Group wins over Service when both
// are set. To is only applied together with Group or Service.
type SummaryFilter struct {
	Group   string
	Service string
	From    time.Time
	To      time.Time
}

// ResultSet holds rows in the column order the data source returned.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Summaries runs the selection query for f.
func (s *Store) Summaries(ctx context.Context, f SummaryFilter) (*ResultSet, error) {
	if s == nil || s.db == nil {
		return nil, newUnavailableError("query summaries", errClosed)
	}
	query, args := summaryQuery(f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, newQueryError("query summaries", err)
	}
	defer rows.Close()

	rs, err := scanResultSet(rows)
	if err != nil {
		return nil, newQueryError("read summaries", err)
	}
	return rs, nil
}

func summaryQuery(f SummaryFilter) (string, []any) {
	from := f.From.UTC().Format(TimeLayout)
	to := f.To.UTC().Format(TimeLayout)

	var b strings.Builder
	b.WriteString("SELECT * FROM " + SummaryView + " WHERE ")
	var args []any
	switch {
	case f.Group != "":
		b.WriteString("VOGroup = ? AND EarliestStartTime > ? AND LatestStartTime < ?")
		args = []any{f.Group, from, to}
	case f.Service != "":
		b.WriteString("SiteName = ? AND EarliestStartTime > ? AND LatestStartTime < ?")
		args = []any{f.Service, from, to}
	default:
		// No upper bound here; only the group/service forms honour To.
		b.WriteString("EarliestStartTime > ?")
		args = []any{from}
	}
	b.WriteString(" ORDER BY EarliestStartTime, LatestStartTime")
	return b.String(), args
}

func scanResultSet(rows *sql.Rows) (*ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	dbTypes := make([]string, len(cols))
	for i, ct := range types {
		dbTypes[i] = strings.ToUpper(ct.DatabaseTypeName())
	}

	rs := &ResultSet{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i := range vals {
			vals[i] = normalizeValue(vals[i], dbTypes[i])
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

// normalizeValue turns driver-specific representations into plain JSON
// friendly scalars. MySQL returns many column types as raw bytes.
func normalizeValue(v any, dbType string) any {
	switch x := v.(type) {
	case []byte:
		return textValue(string(x), dbType)
	case time.Time:
		return x.UTC().Format("2006-01-02T15:04:05")
	default:
		return v
	}
}

func textValue(s, dbType string) any {
	dbType = strings.TrimPrefix(dbType, "UNSIGNED ")
	switch {
	case dbType == "INTEGER" || strings.HasSuffix(dbType, "INT"):
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
	case dbType == "DECIMAL" || dbType == "NUMERIC" || dbType == "FLOAT" || dbType == "DOUBLE" || dbType == "REAL":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
