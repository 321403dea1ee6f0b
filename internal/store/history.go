package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

const historyColumns = `id, timestamp, type, keyword, model, prompt, response, result_count,
    prompt_tokens, completion_tokens, total_tokens, processing_time, success, error`

// AppendHistory inserts a new history record. History is append-only: a
// colliding id is rejected with ErrDuplicateKey rather than replaced.
func (s *SQLiteStore) AppendHistory(entry *HistoryEntry) error {
	stmt, err := s.db.Prepare(`INSERT INTO search_history (` + historyColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare history insert: %w", err)
	}
	defer stmt.Close()

	var promptTokens, completionTokens, totalTokens *int64
	if entry.TokenUsage != nil {
		promptTokens = &entry.TokenUsage.PromptTokens
		completionTokens = &entry.TokenUsage.CompletionTokens
		totalTokens = &entry.TokenUsage.TotalTokens
	}

	_, err = stmt.Exec(
		entry.ID, entry.Timestamp, entry.Type, entry.Keyword, entry.Model,
		entry.Prompt, entry.Response, entry.ResultCount,
		promptTokens, completionTokens, totalTokens,
		entry.ProcessingTime, entry.Success, entry.Error,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("history id %q: %w", entry.ID, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to execute history insert: %w", err)
	}
	return nil
}

// GetAllHistory returns every record, newest first.
func (s *SQLiteStore) GetAllHistory() ([]HistoryEntry, error) {
	rows, err := s.db.Query(`SELECT ` + historyColumns + ` FROM search_history ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// GetHistoryByID returns one record, or ErrNotFound.
func (s *SQLiteStore) GetHistoryByID(id string) (*HistoryEntry, error) {
	row := s.db.QueryRow(`SELECT `+historyColumns+` FROM search_history WHERE id = ?`, id)
	entry, err := scanHistoryEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get history entry: %w", err)
	}
	return entry, nil
}

// DeleteHistory removes one record; deleting an absent id is a no-op.
func (s *SQLiteStore) DeleteHistory(id string) error {
	if _, err := s.db.Exec("DELETE FROM search_history WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	return nil
}

// ClearHistory removes the whole log.
func (s *SQLiteStore) ClearHistory() error {
	if _, err := s.db.Exec("DELETE FROM search_history"); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func scanHistoryEntry(row rowScanner) (*HistoryEntry, error) {
	var entry HistoryEntry
	var response, errMsg sql.NullString
	var promptTokens, completionTokens, totalTokens sql.NullInt64

	err := row.Scan(
		&entry.ID, &entry.Timestamp, &entry.Type, &entry.Keyword, &entry.Model,
		&entry.Prompt, &response, &entry.ResultCount,
		&promptTokens, &completionTokens, &totalTokens,
		&entry.ProcessingTime, &entry.Success, &errMsg,
	)
	if err != nil {
		return nil, err
	}

	if response.Valid {
		entry.Response = &response.String
	}
	if errMsg.Valid {
		entry.Error = &errMsg.String
	}
	if promptTokens.Valid || completionTokens.Valid || totalTokens.Valid {
		entry.TokenUsage = &TokenUsage{
			PromptTokens:     promptTokens.Int64,
			CompletionTokens: completionTokens.Int64,
			TotalTokens:      totalTokens.Int64,
		}
	}
	return &entry, nil
}

// DefaultTopKeywords is the ranking size GetHistoryStats uses.
const DefaultTopKeywords = 5

// GetHistoryStats derives aggregates from a full scan of the log.
func (s *SQLiteStore) GetHistoryStats(topN int) (*HistoryStats, error) {
	if topN <= 0 {
		topN = DefaultTopKeywords
	}
	history, err := s.GetAllHistory()
	if err != nil {
		return nil, err
	}

	stats := &HistoryStats{
		TotalSearches:  len(history),
		TopKeywords:    []KeywordCount{},
		RecentSearches: []HistoryEntry{},
	}

	var processingSum int64
	for _, h := range history {
		if h.Success {
			stats.SuccessfulSearches++
		} else {
			stats.FailedSearches++
		}
		stats.TotalAPIsFound += h.ResultCount
		if h.TokenUsage != nil {
			stats.TotalTokensUsed += h.TokenUsage.PromptTokens + h.TokenUsage.CompletionTokens
		}
		processingSum += h.ProcessingTime
	}
	if len(history) > 0 {
		stats.AverageProcessingTime = processingSum / int64(len(history))
	}

	stats.TopKeywords = topKeywords(history, topN)
	if len(history) > 10 {
		stats.RecentSearches = history[:10]
	} else {
		stats.RecentSearches = history
	}
	return stats, nil
}

// topKeywords groups keywords case-insensitively and ranks by count, ties
// broken by first appearance in the (newest-first) log.
func topKeywords(history []HistoryEntry, limit int) []KeywordCount {
	counts := map[string]int{}
	firstSeen := map[string]int{}
	var order []string

	for i, h := range history {
		keyword := strings.ToLower(h.Keyword)
		if keyword == "" {
			continue
		}
		if _, ok := counts[keyword]; !ok {
			firstSeen[keyword] = i
			order = append(order, keyword)
		}
		counts[keyword]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return firstSeen[order[i]] < firstSeen[order[j]]
	})

	if len(order) > limit {
		order = order[:limit]
	}
	top := make([]KeywordCount, 0, len(order))
	for _, k := range order {
		top = append(top, KeywordCount{Keyword: k, Count: counts[k]})
	}
	return top
}

// historyExportEntry adds a human-readable timestamp next to the raw one.
type historyExportEntry struct {
	HistoryEntry
	TimestampFormatted string `json:"timestampFormatted"`
}

type historyExport struct {
	ExportedAt   string               `json:"exportedAt"`
	Version      string               `json:"version"`
	TotalRecords int                  `json:"totalRecords"`
	History      []historyExportEntry `json:"history"`
}

// ExportHistoryJSON serializes the full log (newest first) as one document.
func (s *SQLiteStore) ExportHistoryJSON() (string, error) {
	history, err := s.GetAllHistory()
	if err != nil {
		return "", err
	}

	export := historyExport{
		ExportedAt:   time.Now().UTC().Format(time.RFC3339),
		Version:      exportSchemaVersion,
		TotalRecords: len(history),
		History:      make([]historyExportEntry, 0, len(history)),
	}
	for _, h := range history {
		export.History = append(export.History, historyExportEntry{
			HistoryEntry:       h,
			TimestampFormatted: time.UnixMilli(h.Timestamp).Format("2006-01-02 15:04:05"),
		})
	}

	out, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal history export: %w", err)
	}
	return string(out), nil
}
