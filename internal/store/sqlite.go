package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrNotFound is returned by lookups when no row matches the given key.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateKey is returned by append-only inserts when the key collides.
var ErrDuplicateKey = errors.New("duplicate key")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS apis (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        provider TEXT NOT NULL DEFAULT '',
        category TEXT NOT NULL DEFAULT '',
        description TEXT NOT NULL DEFAULT '',
        long_description TEXT NOT NULL DEFAULT '',
        use_cases TEXT NOT NULL DEFAULT '[]', -- JSON array of strings
        auth_type TEXT NOT NULL DEFAULT '',
        pricing TEXT NOT NULL DEFAULT '',
        url TEXT NOT NULL DEFAULT '',
        endpoint_example TEXT NOT NULL DEFAULT '',
        response_example TEXT, -- arbitrary JSON value
        status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'deprecated', 'eol')),
        tags TEXT NOT NULL DEFAULT '[]', -- JSON array of strings
        is_favorite BOOLEAN NOT NULL DEFAULT FALSE,
        search_keyword TEXT NOT NULL DEFAULT '',
        created_at INTEGER NOT NULL,
        last_edited_at INTEGER,
        last_checked_at INTEGER,
        last_verified_at INTEGER
    );
    CREATE INDEX IF NOT EXISTS idx_apis_category ON apis (category);
    CREATE INDEX IF NOT EXISTS idx_apis_search_keyword ON apis (search_keyword);
    CREATE INDEX IF NOT EXISTS idx_apis_created_at ON apis (created_at);
    CREATE INDEX IF NOT EXISTS idx_apis_status ON apis (status);

    CREATE TABLE IF NOT EXISTS search_history (
        id TEXT PRIMARY KEY,
        timestamp INTEGER NOT NULL,
        type TEXT NOT NULL CHECK (type IN ('search', 'url_import', 'code_gen', 'status_check', 'verify')),
        keyword TEXT NOT NULL,
        model TEXT NOT NULL DEFAULT '',
        prompt TEXT NOT NULL DEFAULT '',
        response TEXT,
        result_count INTEGER NOT NULL DEFAULT 0,
        prompt_tokens INTEGER,
        completion_tokens INTEGER,
        total_tokens INTEGER,
        processing_time INTEGER NOT NULL DEFAULT 0,
        success BOOLEAN NOT NULL DEFAULT FALSE,
        error TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_history_timestamp ON search_history (timestamp);
    CREATE INDEX IF NOT EXISTS idx_history_keyword ON search_history (keyword);
    CREATE INDEX IF NOT EXISTS idx_history_type ON search_history (type);

    CREATE TABLE IF NOT EXISTS preferences (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}
