package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/user/cloudsummary/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

const defaultConnectTimeout = 5 * time.Second

// Open connects to the summary data source described by cfg. The
// connection is verified with a ping bounded by cfg.Timeout; any failure
// is reported as an unavailable-storage error.
func Open(ctx context.Context, cfg config.DB) (*Store, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Backend {
	case "", "mysql":
		db, err = openMySQL(cfg, timeout)
	case "sqlite":
		db, err = openSQLite(cfg.Name)
	default:
		err = fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, newUnavailableError(fmt.Sprintf("open %s database %s", cfg.Backend, cfg.Name), err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, newUnavailableError(fmt.Sprintf("connect to %s at %s as %s", cfg.Name, cfg.Hostname, cfg.Username), err)
	}
	return &Store{db: db}, nil
}

func openMySQL(cfg config.DB, timeout time.Duration) (*sql.DB, error) {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Hostname, strconv.Itoa(port))
	mc.DBName = cfg.Name
	mc.Timeout = timeout
	mc.ReadTimeout = 2 * timeout
	mc.ParseTime = true
	mc.Loc = time.UTC

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}

// openSQLite opens an existing SQLite file read-only. A missing file is
// an error instead of silently creating an empty database.
func openSQLite(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=query_only(1)")
}

// InitSQLite creates (or upgrades) a development SQLite database at path
// holding the VCloudSummaries table.
func InitSQLite(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	if err := migrate(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("summary database initialised", "path", path)
	return nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%f', 'now'))
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("get current migration version: %w", err)
	}
	if current >= 1 {
		slog.Debug("migrations up to date", "version", current)
		return nil
	}

	sqlBytes, err := migrations.ReadFile("migrations/001_vcloud_summaries.sql")
	if err != nil {
		return fmt.Errorf("read migration 001: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(sqlBytes)); err != nil {
		return fmt.Errorf("execute migration 001: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("record migration 001: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration 001: %w", err)
	}
	slog.Info("applied migration", "version", 1)
	return nil
}

var errClosed = errors.New("store is closed")
