package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	cfg := loadConfig(filepath.Join(t.TempDir(), "missing.conf"))
	if cfg.DB.Name != "apel_rest" || cfg.ResultsPerPage != 100 {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfigSecretFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloudsummary.conf")
	if err := os.WriteFile(path, []byte("iam.server_secret=fromfile\nallowed_for_get=TestService\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("CLOUDSUMMARY_IAM_SECRET", "fromenv")
	cfg := loadConfig(path)
	if cfg.IAM.ServerSecret != "fromenv" {
		t.Errorf("ServerSecret = %q, want fromenv", cfg.IAM.ServerSecret)
	}
	if len(cfg.AllowedForGet) != 1 || cfg.AllowedForGet[0] != "TestService" {
		t.Errorf("AllowedForGet = %v", cfg.AllowedForGet)
	}
}

func TestLoadConfigBadValueKeepsAllowList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloudsummary.conf")
	text := "allowed_for_get=TestService\nreturn_headers=WallDuration\ndb.timeout=5\n"
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg := loadConfig(path)
	if len(cfg.AllowedForGet) != 1 || cfg.AllowedForGet[0] != "TestService" {
		t.Errorf("AllowedForGet = %v, want [TestService]", cfg.AllowedForGet)
	}
	if len(cfg.ReturnHeaders) != 1 || cfg.ReturnHeaders[0] != "WallDuration" {
		t.Errorf("ReturnHeaders = %v", cfg.ReturnHeaders)
	}
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "-"},
		{float64(86399), "86399"},
		{1.5, "1.5"},
		{"2016-07-30T00:00:00", "2016-07-30T00:00:00"},
	}
	for _, tt := range tests {
		if got := formatCell(tt.in); got != tt.want {
			t.Errorf("formatCell(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSampleRecords(t *testing.T) {
	recs := sampleRecords()
	if len(recs) != 7 {
		t.Fatalf("len = %d", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if !recs[i].EarliestStartTime.After(recs[i-1].EarliestStartTime) {
			t.Errorf("records not in day order at %d", i)
		}
	}
}
