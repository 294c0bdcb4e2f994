// Package storage persists the session credentials in a local SQLite
// database so a previous login can resume on the next start.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore 基于 SQLite (WAL 模式) 的持久化实现
// SQLiteStore implements Store using SQLite with WAL mode.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore 创建并初始化 SQLite 数据库
// NewSQLiteStore creates and initializes a SQLite database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		access     TEXT NOT NULL DEFAULT '',
		refresh    TEXT NOT NULL DEFAULT '',
		user_id    INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close 关闭数据库连接 / Close the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// SaveCredentials 覆盖保存登录凭据 / SaveCredentials upserts the single
// credential row.
func (s *SQLiteStore) SaveCredentials(c Credentials) error {
	_, err := s.db.Exec(`
		INSERT INTO credentials (id, access, refresh, user_id, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access = excluded.access,
			refresh = excluded.refresh,
			user_id = excluded.user_id,
			updated_at = excluded.updated_at`,
		c.Access, c.Refresh, c.UserID, nowUTC())
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// LoadCredentials 读取登录凭据 / LoadCredentials returns the stored pair or
// ErrNotFound when nobody has logged in on this machine.
func (s *SQLiteStore) LoadCredentials() (Credentials, error) {
	var c Credentials
	err := s.db.QueryRow(`SELECT access, refresh, user_id FROM credentials WHERE id = 1`).
		Scan(&c.Access, &c.Refresh, &c.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, ErrNotFound
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	if c.Access == "" && c.Refresh == "" {
		return Credentials{}, ErrNotFound
	}
	return c, nil
}

// ClearCredentials 删除登录凭据 / ClearCredentials wipes the stored pair.
func (s *SQLiteStore) ClearCredentials() error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
