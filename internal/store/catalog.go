package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

const apiColumns = `id, name, provider, category, description, long_description, use_cases,
    auth_type, pricing, url, endpoint_example, response_example, status, tags, is_favorite,
    search_keyword, created_at, last_edited_at, last_checked_at, last_verified_at`

// UpsertAPI inserts or fully replaces one catalog entry by id. There is no
// field-level merge; the caller is expected to read-modify-write.
func (s *SQLiteStore) UpsertAPI(entry *APIEntry) error {
	if entry.Status == "" {
		entry.Status = StatusActive
	}

	useCases, err := json.Marshal(sliceOrEmpty(entry.UseCases))
	if err != nil {
		return fmt.Errorf("failed to marshal use cases: %w", err)
	}
	tags, err := json.Marshal(sliceOrEmpty(entry.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	var responseExample sql.NullString
	if len(entry.ResponseExample) > 0 {
		responseExample = sql.NullString{String: string(entry.ResponseExample), Valid: true}
	}

	stmt, err := s.db.Prepare(`INSERT OR REPLACE INTO apis (` + apiColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare api upsert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(
		entry.ID, entry.Name, entry.Provider, entry.Category, entry.Description,
		entry.LongDescription, string(useCases), entry.AuthType, entry.Pricing,
		entry.URL, entry.EndpointExample, responseExample, entry.Status, string(tags),
		entry.IsFavorite, entry.SearchKeyword, entry.CreatedAt,
		entry.LastEditedAt, entry.LastCheckedAt, entry.LastVerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to execute api upsert: %w", err)
	}
	return nil
}

// UpsertAPIs applies UpsertAPI to each entry. The batch is not atomic:
// entries before a failing one stay written, and every failure is surfaced.
func (s *SQLiteStore) UpsertAPIs(entries []APIEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for i := range entries {
		if err := s.UpsertAPI(&entries[i]); err != nil {
			return fmt.Errorf("failed to upsert entry %q: %w", entries[i].ID, err)
		}
	}
	return nil
}

// GetAPIByID returns one entry, or ErrNotFound.
func (s *SQLiteStore) GetAPIByID(id string) (*APIEntry, error) {
	row := s.db.QueryRow(`SELECT `+apiColumns+` FROM apis WHERE id = ?`, id)
	entry, err := scanAPIEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get api entry: %w", err)
	}
	return entry, nil
}

// GetAllAPIs returns the full catalog ordered by creation time, newest first.
func (s *SQLiteStore) GetAllAPIs() ([]APIEntry, error) {
	rows, err := s.db.Query(`SELECT ` + apiColumns + ` FROM apis ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query apis: %w", err)
	}
	defer rows.Close()

	var entries []APIEntry
	for rows.Next() {
		entry, err := scanAPIEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api row: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// DeleteAPI removes one entry. Deleting an absent id is not an error.
func (s *SQLiteStore) DeleteAPI(id string) error {
	if _, err := s.db.Exec("DELETE FROM apis WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete api entry: %w", err)
	}
	return nil
}

// ClearAPIs removes every catalog entry.
func (s *SQLiteStore) ClearAPIs() error {
	if _, err := s.db.Exec("DELETE FROM apis"); err != nil {
		return fmt.Errorf("failed to clear apis: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIEntry(row rowScanner) (*APIEntry, error) {
	var entry APIEntry
	var useCases, tags string
	var responseExample sql.NullString
	var lastEdited, lastChecked, lastVerified sql.NullInt64

	err := row.Scan(
		&entry.ID, &entry.Name, &entry.Provider, &entry.Category, &entry.Description,
		&entry.LongDescription, &useCases, &entry.AuthType, &entry.Pricing,
		&entry.URL, &entry.EndpointExample, &responseExample, &entry.Status, &tags,
		&entry.IsFavorite, &entry.SearchKeyword, &entry.CreatedAt,
		&lastEdited, &lastChecked, &lastVerified,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(useCases), &entry.UseCases); err != nil {
		log.Printf("Warning: malformed use_cases for entry %s: %v", entry.ID, err)
		entry.UseCases = nil
	}
	if err := json.Unmarshal([]byte(tags), &entry.Tags); err != nil {
		log.Printf("Warning: malformed tags for entry %s: %v", entry.ID, err)
		entry.Tags = nil
	}
	if responseExample.Valid {
		entry.ResponseExample = json.RawMessage(responseExample.String)
	}
	if lastEdited.Valid {
		entry.LastEditedAt = &lastEdited.Int64
	}
	if lastChecked.Valid {
		entry.LastCheckedAt = &lastChecked.Int64
	}
	if lastVerified.Valid {
		entry.LastVerifiedAt = &lastVerified.Int64
	}
	return &entry, nil
}

func sliceOrEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// catalogExport is the structured dump format shared by export and import.
type catalogExport struct {
	Version    string     `json:"version"`
	ExportedAt string     `json:"exportedAt"`
	Data       []APIEntry `json:"data"`
}

const exportSchemaVersion = "1.0"

// ExportCatalogJSON serializes the full catalog as a structured dump that
// ImportCatalog accepts back.
func (s *SQLiteStore) ExportCatalogJSON() (string, error) {
	entries, err := s.GetAllAPIs()
	if err != nil {
		return "", err
	}
	if entries == nil {
		entries = []APIEntry{}
	}
	dump := catalogExport{
		Version:    exportSchemaVersion,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Data:       entries,
	}
	out, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal catalog export: %w", err)
	}
	return string(out), nil
}

var csvColumns = []string{"name", "category", "provider", "url", "authType", "pricing", "description"}

// ExportCatalogCSV renders a fixed column set with every value quoted and
// embedded quotes doubled.
func (s *SQLiteStore) ExportCatalogCSV() (string, error) {
	entries, err := s.GetAllAPIs()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(strings.Join(csvColumns, ","))
	for _, e := range entries {
		values := []string{e.Name, e.Category, e.Provider, e.URL, e.AuthType, e.Pricing, e.Description}
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(quoted, ","))
	}
	return b.String(), nil
}

// ExportCatalogMarkdown renders a heading-per-entry document.
func (s *SQLiteStore) ExportCatalogMarkdown() (string, error) {
	entries, err := s.GetAllAPIs()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("# Apiary - API Catalog\n\n")
	fmt.Fprintf(&b, "> Exported at: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	for _, e := range entries {
		fmt.Fprintf(&b, "## %s\n\n", e.Name)
		fmt.Fprintf(&b, "**Provider:** %s\n\n", e.Provider)
		fmt.Fprintf(&b, "**Category:** %s\n\n", e.Category)
		fmt.Fprintf(&b, "**Description:** %s\n\n", e.Description)
		fmt.Fprintf(&b, "**Auth Type:** %s | **Pricing:** %s\n\n", e.AuthType, e.Pricing)
		fmt.Fprintf(&b, "**URL:** [%s](%s)\n\n", e.URL, e.URL)
		b.WriteString("---\n\n")
	}
	return b.String(), nil
}
