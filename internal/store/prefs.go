package store

import (
	"database/sql"
	"fmt"
)

// Preference keys. These mirror the two values the browser UI kept in
// localStorage: the generation credential and the model selection.
const (
	PrefAPIKey = "gemini_api_key"
	PrefModel  = "gemini_model"
)

// GetPreference returns the stored value for key, or "" when unset.
func (s *SQLiteStore) GetPreference(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get preference %q: %w", key, err)
	}
	return value, nil
}

// SetPreference stores or replaces one key/value pair.
func (s *SQLiteStore) SetPreference(key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO preferences (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to set preference %q: %w", key, err)
	}
	return nil
}
