package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/cloudsummary/internal/store"
)

var initDBSample bool

var initDBCmd = &cobra.Command{
	Use:   "init-db <path>",
	Short: "Create a SQLite summaries database for development",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if !initDBSample {
			if err := store.InitSQLite(path); err != nil {
				return err
			}
			slog.Info("summaries database initialized", "path", path)
			return nil
		}
		records := sampleRecords()
		if err := store.SeedSQLite(path, records); err != nil {
			return err
		}
		slog.Info("summaries database seeded", "path", path, "rows", len(records))
		fmt.Printf("Seeded %d rows into %s\n", len(records), path)
		return nil
	},
}

func init() {
	initDBCmd.Flags().BoolVar(&initDBSample, "sample", false, "Insert a small set of sample summaries")
	rootCmd.AddCommand(initDBCmd)
}

func sampleRecords() []store.SummaryRecord {
	base := store.SummaryRecord{
		SiteName:            "TestSite",
		CloudComputeService: "TestService",
		VO:                  "TestVO",
		VOGroup:             "TestGroup",
		VORole:              "TestRole",
		GlobalUserName:      "TestDN",
		CloudType:           "TEST",
		Status:              "Running",
		ImageID:             "TestImage",
		NumberOfVMs:         1,
	}
	var out []store.SummaryRecord
	start := time.Date(2016, 7, 25, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		r := base
		r.EarliestStartTime = start.AddDate(0, 0, i)
		r.WallDuration = int64(43200 + i*3600)
		r.CpuDuration = r.WallDuration / 2
		out = append(out, r)
	}
	return out
}
