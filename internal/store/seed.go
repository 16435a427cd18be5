package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SummaryRecord is one day bucket written into a development database.
type SummaryRecord struct {
	SiteName            string
	CloudComputeService string
	VO                  string
	VOGroup             string
	VORole              string
	GlobalUserName      string
	CloudType           string
	Status              string
	ImageID             string
	EarliestStartTime   time.Time
	LatestStartTime     time.Time
	WallDuration        int64
	CpuDuration         int64
	NumberOfVMs         int64
}

// SeedSQLite inserts records into the SQLite database at path, creating
// the schema first when needed. Day, Month and Year are derived from
// EarliestStartTime.
func SeedSQLite(path string, records []SummaryRecord) error {
	if err := InitSQLite(path); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		start := r.EarliestStartTime.UTC()
		latest := r.LatestStartTime
		if latest.IsZero() {
			latest = start
		}
		_, err := tx.Exec(`INSERT INTO VCloudSummaries (
			SiteName, CloudComputeService, Day, Month, Year, GlobalUserName, VO, VOGroup, VORole,
			Status, CloudType, ImageId, EarliestStartTime, LatestStartTime, WallDuration, CpuDuration, NumberOfVMs
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.SiteName, r.CloudComputeService, start.Day(), int(start.Month()), start.Year(),
			r.GlobalUserName, r.VO, r.VOGroup, r.VORole, r.Status, r.CloudType, r.ImageID,
			start.Format(TimeLayout), latest.UTC().Format(TimeLayout),
			r.WallDuration, r.CpuDuration, r.NumberOfVMs,
		)
		if err != nil {
			return fmt.Errorf("insert summary row: %w", err)
		}
	}
	return tx.Commit()
}
