package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testConf = `# database the summaries are read from
db.backend=sqlite
db.hostname=db.example.org
db.port=3307
db.name=test_apel_rest
db.username=reader
db.password=
db.timeout=2s

iam.introspect_url=https://iam.example.org/introspect
iam.server_id=summary-server
iam.server_secret=s3cret

allowed_for_get=TestService, OtherService
return_headers=WallDuration,Day,Month,Year
results_per_page=25
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloudsummary.conf")
	if err := os.WriteFile(path, []byte(testConf), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.Backend != "sqlite" || cfg.DB.Hostname != "db.example.org" || cfg.DB.Port != 3307 {
		t.Errorf("db = %+v", cfg.DB)
	}
	if cfg.DB.Name != "test_apel_rest" || cfg.DB.Username != "reader" || cfg.DB.Password != "" {
		t.Errorf("db credentials = %+v", cfg.DB)
	}
	if cfg.DB.Timeout != 2*time.Second {
		t.Errorf("db timeout = %v, want 2s", cfg.DB.Timeout)
	}
	if cfg.IAM.IntrospectURL != "https://iam.example.org/introspect" || cfg.IAM.ServerID != "summary-server" || cfg.IAM.ServerSecret != "s3cret" {
		t.Errorf("iam = %+v", cfg.IAM)
	}
	if cfg.IAM.Timeout != 10*time.Second {
		t.Errorf("iam timeout = %v, want default 10s", cfg.IAM.Timeout)
	}
	if len(cfg.AllowedForGet) != 2 || cfg.AllowedForGet[0] != "TestService" || cfg.AllowedForGet[1] != "OtherService" {
		t.Errorf("allowed_for_get = %v", cfg.AllowedForGet)
	}
	if len(cfg.ReturnHeaders) != 4 {
		t.Errorf("return_headers = %v", cfg.ReturnHeaders)
	}
	if cfg.ResultsPerPage != 25 {
		t.Errorf("results_per_page = %d, want 25", cfg.ResultsPerPage)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.conf")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestParseKeepsDefaults(t *testing.T) {
	cfg, err := Parse("db.name=other\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	def := Default()
	if cfg.DB.Name != "other" {
		t.Errorf("db.name = %q, want other", cfg.DB.Name)
	}
	if cfg.DB.Hostname != def.DB.Hostname || cfg.DB.Username != def.DB.Username || cfg.DB.Port != def.DB.Port {
		t.Errorf("defaults not kept: %+v", cfg.DB)
	}
	if cfg.ResultsPerPage != DefaultResultsPerPage {
		t.Errorf("results_per_page = %d", cfg.ResultsPerPage)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"bad port", "db.port=abc\n"},
		{"port out of range", "db.port=70000\n"},
		{"bad page size", "results_per_page=0\n"},
		{"bad timeout", "iam.timeout=soon\n"},
		{"unknown backend", "db.backend=oracle\n"},
		{"bad key", "db/host=localhost\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse(tt.text)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", tt.text)
			}
			def := Default()
			if cfg.DB.Port != def.DB.Port || cfg.DB.Backend != def.DB.Backend ||
				cfg.ResultsPerPage != def.ResultsPerPage || cfg.IAM.Timeout != def.IAM.Timeout {
				t.Errorf("rejected value not reset to default: %+v", cfg)
			}
		})
	}
}

func TestParseBadValueKeepsOtherKeys(t *testing.T) {
	text := `allowed_for_get=TestService
return_headers=WallDuration,Day
results_per_page=10
iam.server_id=summary-server
db.name=test_apel_rest
db.timeout=5
db.port=abc
`
	cfg, err := Parse(text)
	if err == nil {
		t.Fatal("expected error for bad db.timeout and db.port")
	}
	keys := map[string]bool{}
	for _, ke := range KeyErrors(err) {
		keys[ke.Key] = true
	}
	if !keys["db.timeout"] || !keys["db.port"] || len(keys) != 2 {
		t.Errorf("reported keys = %v, want db.timeout and db.port", keys)
	}
	if len(cfg.AllowedForGet) != 1 || cfg.AllowedForGet[0] != "TestService" {
		t.Errorf("allowed_for_get = %v, want [TestService]", cfg.AllowedForGet)
	}
	if len(cfg.ReturnHeaders) != 2 || cfg.ResultsPerPage != 10 || cfg.IAM.ServerID != "summary-server" {
		t.Errorf("other keys lost: %+v", cfg)
	}
	if cfg.DB.Name != "test_apel_rest" {
		t.Errorf("db.name = %q", cfg.DB.Name)
	}
	if cfg.DB.Timeout != Default().DB.Timeout || cfg.DB.Port != Default().DB.Port {
		t.Errorf("bad db values should keep defaults: %+v", cfg.DB)
	}
}

func TestLoadBadValueKeepsAllowList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloudsummary.conf")
	if err := os.WriteFile(path, []byte("allowed_for_get=TestService\ndb.timeout=5\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if len(KeyErrors(err)) != 1 {
		t.Fatalf("Load err = %v, want one key error", err)
	}
	if len(cfg.AllowedForGet) != 1 || cfg.AllowedForGet[0] != "TestService" {
		t.Errorf("allowed_for_get = %v", cfg.AllowedForGet)
	}
}

func TestParseQuotedSecrets(t *testing.T) {
	cfg, err := Parse("db.password='pa$SS #1'\niam.server_secret='p4ss #1'\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DB.Password != "pa$SS #1" {
		t.Errorf("db.password = %q, want %q", cfg.DB.Password, "pa$SS #1")
	}
	if cfg.IAM.ServerSecret != "p4ss #1" {
		t.Errorf("iam.server_secret = %q, want %q", cfg.IAM.ServerSecret, "p4ss #1")
	}
}

func TestParseWarnsOnUnquotedSecrets(t *testing.T) {
	tests := []struct {
		text string
		key  string
	}{
		{"db.password=ab$X9cd\n", "db.password"},
		{"iam.server_secret=p4ss #1\n", "iam.server_secret"},
		{`db.password="ab$X9cd"` + "\n", "db.password"},
	}
	for _, tt := range tests {
		_, err := Parse(tt.text)
		kes := KeyErrors(err)
		if len(kes) != 1 || kes[0].Key != tt.key {
			t.Errorf("Parse(%q) key errors = %v, want one for %s", tt.text, kes, tt.key)
		}
	}
	if _, err := Parse("db.password=plain\niam.server_secret='a$b'\n"); err != nil {
		t.Errorf("safe secrets reported: %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DB.Hostname != "localhost" || cfg.DB.Name != "apel_rest" || cfg.DB.Username != "root" || cfg.DB.Password != "" {
		t.Errorf("default db = %+v", cfg.DB)
	}
	if len(cfg.AllowedForGet) != 0 {
		t.Errorf("default allow-list should be empty, got %v", cfg.AllowedForGet)
	}
}
