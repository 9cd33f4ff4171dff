package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/eventwindow/eventwindow/internal/config"
)

const (
	driverLibsql = "libsql"

	memoryPath         = ":memory:"
	localBusyTimeoutMS = 5000
)

// Store holds window run history in a libsql database, either a local file
// or a remote Turso/libsql server.
type Store struct {
	DB     *sql.DB
	driver string
}

// target is a resolved connection string. dir is created before opening.
type target struct {
	dsn   string
	dir   string
	local bool
}

// Open connects to the configured store. "sqlite" is accepted as an alias
// for libsql since the driver serves both.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", driverLibsql:
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	tgt, err := resolveTarget(cfg)
	if err != nil {
		return nil, err
	}
	if tgt.dir != "" {
		// #nosec G301 -- data directories use 0755 for multi-user access compatibility
		if err := os.MkdirAll(tgt.dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open(driverLibsql, tgt.dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql store: %w", err)
	}
	if err := prepare(ctx, db, tgt); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db, driver: driverLibsql}, nil
}

func prepare(ctx context.Context, db *sql.DB, tgt target) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping libsql store: %w", err)
	}
	if tgt.dsn == memoryPath {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
		return nil
	}
	if !tgt.local {
		return nil
	}

	db.SetMaxOpenConns(1)
	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable wal journal: %w", err)
	}
	var timeout int
	if err := db.QueryRowContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", localBusyTimeoutMS)).Scan(&timeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// CheckHealth pings the database.
func (s *Store) CheckHealth(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store not open")
	}
	return s.DB.PingContext(ctx)
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

// resolveTarget turns the store config into a libsql DSN. A URL wins over a
// path; bare paths become file: DSNs.
func resolveTarget(cfg config.StoreConfig) (target, error) {
	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		dsn, err := withAuthToken(raw, strings.TrimSpace(cfg.AuthToken))
		return target{dsn: dsn}, err
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return target{}, errors.New("store path or url is required")
	case path == memoryPath:
		return target{dsn: memoryPath}, nil
	case strings.HasPrefix(path, "libsql:"):
		return target{dsn: path}, nil
	case strings.HasPrefix(path, "file:"):
		u, err := url.Parse(path)
		if err != nil {
			return target{}, fmt.Errorf("invalid store path: %w", err)
		}
		local := u.Path
		if local == "" {
			local = u.Opaque
		}
		return target{dsn: path, dir: parentDir(strings.TrimPrefix(local, "//")), local: true}, nil
	default:
		clean := filepath.Clean(path)
		return target{dsn: "file:" + clean, dir: parentDir(clean), local: true}, nil
	}
}

func withAuthToken(dsn, token string) (string, error) {
	if token == "" {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	q := u.Query()
	if q.Get("authToken") != "" {
		return dsn, nil
	}
	q.Set("authToken", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parentDir returns the directory to create for a database file, or "" when
// there is nothing to create.
func parentDir(path string) string {
	if path == "" {
		return ""
	}
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	return dir
}
