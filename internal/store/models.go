package store

import "encoding/json"

// Entry status values. An entry is "active" unless a status check or an
// import says otherwise.
const (
	StatusActive     = "active"
	StatusDeprecated = "deprecated"
	StatusEOL        = "eol"
)

// History entry types, one per kind of generation call.
const (
	HistorySearch      = "search"
	HistoryURLImport   = "url_import"
	HistoryCodeGen     = "code_gen"
	HistoryStatusCheck = "status_check"
	HistoryVerify      = "verify"
)

// APIEntry is one catalog record. Timestamps are milliseconds since epoch,
// matching the export format consumed and produced by the browser UI.
type APIEntry struct {
	ID              string          `json:"id" validate:"required"`
	Name            string          `json:"name" validate:"required"`
	Provider        string          `json:"provider" validate:"required"`
	Category        string          `json:"category" validate:"required"`
	Description     string          `json:"description" validate:"required"`
	LongDescription string          `json:"longDescription,omitempty"`
	UseCases        []string        `json:"useCases,omitempty"`
	AuthType        string          `json:"authType,omitempty"`
	Pricing         string          `json:"pricing,omitempty"`
	URL             string          `json:"url,omitempty"`
	EndpointExample string          `json:"endpointExample,omitempty"`
	ResponseExample json.RawMessage `json:"responseExample,omitempty"`
	Status          string          `json:"status"`
	Tags            []string        `json:"tags,omitempty"`
	IsFavorite      bool            `json:"isFavorite"`
	SearchKeyword   string          `json:"searchKeyword,omitempty"`
	CreatedAt       int64           `json:"createdAt"`
	LastEditedAt    *int64          `json:"lastEditedAt,omitempty"`
	LastCheckedAt   *int64          `json:"lastCheckedAt,omitempty"`
	LastVerifiedAt  *int64          `json:"lastVerifiedAt,omitempty"`
}

// HasTag reports whether the entry already carries the tag (case-sensitive).
func (e *APIEntry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// TokenUsage mirrors the usage counters the generation endpoint reports.
type TokenUsage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

// HistoryEntry is an immutable log record of one generation call. It is
// written exactly once, after the call's outcome is known, and never updated.
type HistoryEntry struct {
	ID             string      `json:"id"`
	Timestamp      int64       `json:"timestamp"`
	Type           string      `json:"type"`
	Keyword        string      `json:"keyword"`
	Model          string      `json:"model"`
	Prompt         string      `json:"prompt"`
	Response       *string     `json:"response"`
	ResultCount    int         `json:"resultCount"`
	TokenUsage     *TokenUsage `json:"tokenUsage,omitempty"`
	ProcessingTime int64       `json:"processingTime"`
	Success        bool        `json:"success"`
	Error          *string     `json:"error"`
}

// KeywordCount is one row of the top-keywords ranking in HistoryStats.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// HistoryStats aggregates the full history log.
type HistoryStats struct {
	TotalSearches         int            `json:"totalSearches"`
	SuccessfulSearches    int            `json:"successfulSearches"`
	FailedSearches        int            `json:"failedSearches"`
	TotalAPIsFound        int            `json:"totalApisFound"`
	TotalTokensUsed       int64          `json:"totalTokensUsed"`
	AverageProcessingTime int64          `json:"averageProcessingTime"`
	TopKeywords           []KeywordCount `json:"topKeywords"`
	RecentSearches        []HistoryEntry `json:"recentSearches"`
}
