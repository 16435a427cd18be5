// Package config loads the process-wide settings of the summary service.
//
// The config file uses dotenv syntax. Unquoted values are expanded ($VAR)
// and cut at " #", so credentials such as db.password and
// iam.server_secret should be single-quoted:
//
//	db.password='pa$SS #1'
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DB holds connection parameters for the summary data source.
type DB struct {
	Backend  string
	Hostname string
	Port     int
	Name     string
	Username string
	Password string
	Timeout  time.Duration
}

// IAM holds the settings used to talk to the token introspection service.
type IAM struct {
	IntrospectURL string
	Issuer        string
	ServerID      string
	ServerSecret  string
	Timeout       time.Duration
}

// Config is built once at startup and shared read-only by all requests.
type Config struct {
	DB             DB
	IAM            IAM
	AllowedForGet  []string
	ReturnHeaders  []string
	ResultsPerPage int
}

const (
	DefaultIntrospectURL  = "https://iam-test.indigo-datacloud.eu/introspect"
	DefaultResultsPerPage = 100
)

// Default returns the configuration used when the config file cannot be read.
func Default() Config {
	return Config{
		DB: DB{
			Backend:  "mysql",
			Hostname: "localhost",
			Port:     3306,
			Name:     "apel_rest",
			Username: "root",
			Password: "",
			Timeout:  5 * time.Second,
		},
		IAM: IAM{
			IntrospectURL: DefaultIntrospectURL,
			Timeout:       10 * time.Second,
		},
		AllowedForGet:  nil,
		ReturnHeaders:  []string{"WallDuration", "Day", "Month", "Year"},
		ResultsPerPage: DefaultResultsPerPage,
	}
}

// Load reads a key-value config file. Keys missing from the file keep
// their Default value. A file that cannot be read or parsed yields Default
// and an error. Otherwise the returned Config is always usable: a key whose
// value is invalid keeps its Default and is reported as a *KeyError inside
// the returned error, so one bad value never discards the rest of the file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load for config text that is already in memory.
func Parse(text string) (Config, error) {
	values, err := godotenv.Unmarshal(text)
	if err != nil {
		return Default(), fmt.Errorf("parse config: %w", err)
	}
	cfg, problems := fromValues(values)
	problems = append(problems, checkSecretQuoting(text)...)
	return cfg, errors.Join(problems...)
}

// KeyError reports a single config value that was rejected or is suspect.
type KeyError struct {
	Key   string
	Value string
	Err   error
}

func (e *KeyError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Key, e.Value, e.Err)
}

func (e *KeyError) Unwrap() error { return e.Err }

var (
	errInvalidValue   = errors.New("invalid value, using default")
	errUnquotedSecret = errors.New("unquoted value may be altered by $ expansion or # comments; wrap it in single quotes")
)

// KeyErrors returns every *KeyError carried by err.
func KeyErrors(err error) []*KeyError {
	var out []*KeyError
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if ke, ok := err.(*KeyError); ok {
			out = append(out, ke)
			return
		}
		switch x := err.(type) {
		case interface{ Unwrap() []error }:
			for _, e := range x.Unwrap() {
				walk(e)
			}
		case interface{ Unwrap() error }:
			walk(x.Unwrap())
		}
	}
	walk(err)
	return out
}

func fromValues(values map[string]string) (Config, []error) {
	cfg := Default()
	var problems []error
	invalid := func(key, v string) {
		problems = append(problems, &KeyError{Key: key, Value: v, Err: errInvalidValue})
	}
	str := func(key string, dst *string) {
		if v, ok := values[key]; ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := values["db.backend"]; ok {
		switch b := strings.TrimSpace(v); b {
		case "mysql", "sqlite":
			cfg.DB.Backend = b
		default:
			invalid("db.backend", v)
		}
	}
	str("db.hostname", &cfg.DB.Hostname)
	str("db.name", &cfg.DB.Name)
	str("db.username", &cfg.DB.Username)
	if v, ok := values["db.password"]; ok {
		cfg.DB.Password = v
	}
	str("iam.introspect_url", &cfg.IAM.IntrospectURL)
	str("iam.issuer", &cfg.IAM.Issuer)
	str("iam.server_id", &cfg.IAM.ServerID)
	if v, ok := values["iam.server_secret"]; ok {
		cfg.IAM.ServerSecret = v
	}

	if v, ok := values["db.port"]; ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || port <= 0 || port > 65535 {
			invalid("db.port", v)
		} else {
			cfg.DB.Port = port
		}
	}
	if !duration(values, "db.timeout", &cfg.DB.Timeout) {
		invalid("db.timeout", values["db.timeout"])
	}
	if !duration(values, "iam.timeout", &cfg.IAM.Timeout) {
		invalid("iam.timeout", values["iam.timeout"])
	}
	if v, ok := values["results_per_page"]; ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			invalid("results_per_page", v)
		} else {
			cfg.ResultsPerPage = n
		}
	}
	if v, ok := values["allowed_for_get"]; ok {
		cfg.AllowedForGet = splitList(v)
	}
	if v, ok := values["return_headers"]; ok {
		cfg.ReturnHeaders = splitList(v)
	}
	return cfg, problems
}

// secretKeys hold credentials, whose values are taken verbatim.
var secretKeys = map[string]bool{
	"db.password":       true,
	"iam.server_secret": true,
}

// checkSecretQuoting flags credential lines whose raw value godotenv would
// rewrite: unquoted values lose "#..." and expand "$VAR", double-quoted
// values still expand "$VAR". Single-quoted values are literal.
func checkSecretQuoting(text string) []error {
	var problems []error
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "export "))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.IndexAny(line, "=:")
		if i < 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		if !secretKeys[key] {
			continue
		}
		raw := strings.TrimSpace(line[i+1:])
		var suspect bool
		switch {
		case strings.HasPrefix(raw, "'"):
		case strings.HasPrefix(raw, `"`):
			suspect = strings.Contains(raw, "$")
		default:
			suspect = strings.ContainsAny(raw, "$#")
		}
		if suspect {
			problems = append(problems, &KeyError{Key: key, Err: errUnquotedSecret})
		}
	}
	return problems
}

// duration parses key into dst. It reports false for a present but
// invalid value, leaving dst unchanged.
func duration(values map[string]string, key string, dst *time.Duration) bool {
	v, ok := values[key]
	if !ok || strings.TrimSpace(v) == "" {
		return true
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		return false
	}
	*dst = d
	return true
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
