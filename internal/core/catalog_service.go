package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/apiary-labs/apiary/internal/store"
)

// Per-call deadlines. Verification reads back the whole record and tends to
// run longer than the other calls.
const (
	searchTimeout      = 60 * time.Second
	urlAnalysisTimeout = 60 * time.Second
	codeGenTimeout     = 60 * time.Second
	statusCheckTimeout = 60 * time.Second
	verifyTimeout      = 90 * time.Second
)

// CatalogService runs the generation flows: it builds prompts, invokes the
// generator, normalizes extracted results into catalog entries, persists
// them, and records exactly one history entry per call regardless of
// outcome.
type CatalogService struct {
	db  *store.SQLiteStore
	llm Generator
}

func NewCatalogService(db *store.SQLiteStore, llm Generator) *CatalogService {
	return &CatalogService{db: db, llm: llm}
}

// generatedAPI is the shape the model is asked to emit for one API. It is
// everything an APIEntry holds except the locally assigned metadata.
type generatedAPI struct {
	Name            string          `json:"name"`
	Provider        string          `json:"provider"`
	Category        string          `json:"category"`
	Description     string          `json:"description"`
	LongDescription string          `json:"longDescription"`
	UseCases        []string        `json:"useCases"`
	AuthType        string          `json:"authType"`
	Pricing         string          `json:"pricing"`
	URL             string          `json:"url"`
	EndpointExample string          `json:"endpointExample"`
	ResponseExample json.RawMessage `json:"responseExample"`
	Status          string          `json:"status"`
}

// newEntry assigns the creation-time metadata: id, createdAt, provenance
// marker, and the default status.
func (g *generatedAPI) newEntry(searchKeyword string) store.APIEntry {
	status := g.Status
	switch status {
	case store.StatusActive, store.StatusDeprecated, store.StatusEOL:
	default:
		status = store.StatusActive
	}
	return store.APIEntry{
		ID:              uuid.NewString(),
		Name:            g.Name,
		Provider:        g.Provider,
		Category:        g.Category,
		Description:     g.Description,
		LongDescription: g.LongDescription,
		UseCases:        g.UseCases,
		AuthType:        g.AuthType,
		Pricing:         g.Pricing,
		URL:             g.URL,
		EndpointExample: g.EndpointExample,
		ResponseExample: g.ResponseExample,
		Status:          status,
		SearchKeyword:   searchKeyword,
		CreatedAt:       time.Now().UnixMilli(),
	}
}

// beginCall opens the history record for one generation call. The returned
// finish func performs the single terminal history write; callers defer it
// so every path (success, upstream failure, extraction failure, timeout)
// converges on exactly one write.
func (s *CatalogService) beginCall(callType, keyword, prompt string) (*store.HistoryEntry, func()) {
	start := time.Now()
	entry := &store.HistoryEntry{
		ID:        uuid.NewString(),
		Timestamp: start.UnixMilli(),
		Type:      callType,
		Keyword:   keyword,
		Model:     s.llm.ModelID(),
		Prompt:    prompt,
	}
	finish := func() {
		elapsed := time.Since(start).Milliseconds()
		if elapsed < 1 {
			elapsed = 1
		}
		entry.ProcessingTime = elapsed
		// A history-write failure must never mask the outcome already
		// returned to the user, so it is logged and swallowed here.
		if err := s.db.AppendHistory(entry); err != nil {
			log.Printf("Failed to record %s history entry %s: %v", callType, entry.ID, err)
		}
	}
	return entry, finish
}

// SearchAPIs asks the model for APIs matching the keyword, persists the
// normalized results, and returns them.
func (s *CatalogService) SearchAPIs(ctx context.Context, keyword string) ([]store.APIEntry, error) {
	prompt := searchPrompt(keyword)
	rec, finish := s.beginCall(store.HistorySearch, keyword, prompt)
	defer finish()

	res, err := s.llm.Generate(ctx, prompt, GenerationParams{Temperature: 0.7, MaxOutputTokens: 4096, Timeout: searchTimeout})
	if err != nil {
		rec.Error = strPtr(err.Error())
		return nil, err
	}
	rec.Response = &res.Text
	rec.Model = res.Model
	rec.TokenUsage = res.Usage

	var parsed struct {
		APIs []generatedAPI `json:"apis"`
	}
	if err := extractInto(res.Text, &parsed); err != nil {
		rec.Error = strPtr(err.Error())
		return nil, err
	}
	rec.Success = true
	rec.ResultCount = len(parsed.APIs)

	entries := make([]store.APIEntry, 0, len(parsed.APIs))
	for i := range parsed.APIs {
		entries = append(entries, parsed.APIs[i].newEntry(keyword))
	}
	if err := s.db.UpsertAPIs(entries); err != nil {
		rec.Error = strPtr(err.Error())
		return nil, err
	}
	return entries, nil
}

// URLAnalysis is the outcome of analyzing a documentation page: a candidate
// entry (not yet persisted) and the model's confidence in it.
type URLAnalysis struct {
	API        store.APIEntry `json:"api"`
	Confidence string         `json:"confidence"`
}

// AnalyzeURL asks the model to extract an API description from a page URL.
// The candidate is returned for user confirmation and only persisted through
// RegisterEntry.
func (s *CatalogService) AnalyzeURL(ctx context.Context, url string) (*URLAnalysis, error) {
	prompt := urlAnalysisPrompt(url)
	rec, finish := s.beginCall(store.HistoryURLImport, url, prompt)
	defer finish()

	res, err := s.llm.Generate(ctx, prompt, GenerationParams{Temperature: 0.3, MaxOutputTokens: 2048, Timeout: urlAnalysisTimeout})
	if err != nil {
		rec.Error = strPtr(err.Error())
		return nil, err
	}
	rec.Response = &res.Text
	rec.Model = res.Model
	rec.TokenUsage = res.Usage

	var parsed struct {
		API        *generatedAPI `json:"api"`
		Confidence string        `json:"confidence"`
	}
	if err := extractInto(res.Text, &parsed); err != nil {
		rec.Error = strPtr(err.Error())
		return nil, err
	}
	if parsed.API == nil || parsed.API.Name == "" {
		rec.Error = strPtr(ErrMalformedResponse.Error())
		return nil, fmt.Errorf("%w: no api object in response", ErrMalformedResponse)
	}
	rec.Success = true
	rec.ResultCount = 1

	analysis := &URLAnalysis{
		API:        parsed.API.newEntry("URL import"),
		Confidence: parsed.Confidence,
	}
	return analysis, nil
}

// RegisterEntry persists an entry arriving from URL analysis confirmation or
// manual creation, filling in any missing creation metadata.
func (s *CatalogService) RegisterEntry(entry *store.APIEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().UnixMilli()
	}
	if entry.SearchKeyword == "" {
		entry.SearchKeyword = "manual"
	}
	return s.db.UpsertAPI(entry)
}

// GenerateCode produces a code sample calling the given catalog entry.
func (s *CatalogService) GenerateCode(ctx context.Context, id, language string) (string, error) {
	entry, err := s.db.GetAPIByID(id)
	if err != nil {
		return "", err
	}

	prompt := codeGenPrompt(entry, language)
	rec, finish := s.beginCall(store.HistoryCodeGen, entry.Name, prompt)
	defer finish()

	res, err := s.llm.Generate(ctx, prompt, GenerationParams{Temperature: 0.3, MaxOutputTokens: 2048, Timeout: codeGenTimeout})
	if err != nil {
		rec.Error = strPtr(err.Error())
		return "", err
	}
	rec.Response = &res.Text
	rec.Model = res.Model
	rec.TokenUsage = res.Usage

	code := ExtractCode(res.Text)
	rec.Success = true
	rec.ResultCount = 1
	return code, nil
}

// StatusCheckResult is the model's assessment of an API's current state.
type StatusCheckResult struct {
	Status  string `json:"status"`
	Changes string `json:"changes"`
	Notes   string `json:"notes"`
}

// CheckStatus asks the model for the API's current lifecycle state and, on
// success, updates the stored entry's status and lastCheckedAt through a
// full read-modify-write.
func (s *CatalogService) CheckStatus(ctx context.Context, id string) (*StatusCheckResult, error) {
	entry, err := s.db.GetAPIByID(id)
	if err != nil {
		return nil, err
	}

	prompt := statusCheckPrompt(entry)
	rec, finish := s.beginCall(store.HistoryStatusCheck, entry.Name, prompt)
	defer finish()

	res, err := s.llm.Generate(ctx, prompt, GenerationParams{Temperature: 0.3, MaxOutputTokens: 1024, Timeout: statusCheckTimeout})
	if err != nil {
		rec.Error = strPtr(err.Error())
		return nil, err
	}
	rec.Response = &res.Text
	rec.Model = res.Model
	rec.TokenUsage = res.Usage

	var result StatusCheckResult
	if err := extractInto(res.Text, &result); err != nil {
		rec.Error = strPtr(err.Error())
		return nil, err
	}
	switch result.Status {
	case store.StatusActive, store.StatusDeprecated, store.StatusEOL:
	default:
		rec.Error = strPtr(ErrMalformedResponse.Error())
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedResponse, result.Status)
	}
	rec.Success = true
	rec.ResultCount = 1

	now := time.Now().UnixMilli()
	entry.Status = result.Status
	entry.LastCheckedAt = &now
	if err := s.db.UpsertAPI(entry); err != nil {
		rec.Error = strPtr(err.Error())
		return nil, err
	}
	return &result, nil
}

// VerifiedFields carries the corrected field values a verification call
// proposes. Empty fields mean no correction.
type VerifiedFields struct {
	Name            string `json:"name"`
	Provider        string `json:"provider"`
	Category        string `json:"category"`
	Description     string `json:"description"`
	AuthType        string `json:"authType"`
	Pricing         string `json:"pricing"`
	URL             string `json:"url"`
	EndpointExample string `json:"endpointExample"`
}

// VerificationResult is the model's accuracy assessment of a catalog record.
type VerificationResult struct {
	Accuracy    string          `json:"accuracy"`
	Issues      []string        `json:"issues"`
	VerifiedAPI *VerifiedFields `json:"verifiedApi"`
}

// Verify re-checks a stored record against the model's knowledge. It does
// not mutate the entry; corrections are applied separately after the user
// confirms them.
func (s *CatalogService) Verify(ctx context.Context, id string) (*VerificationResult, error) {
	entry, err := s.db.GetAPIByID(id)
	if err != nil {
		return nil, err
	}

	prompt := verifyPrompt(entry)
	rec, finish := s.beginCall(store.HistoryVerify, entry.Name, prompt)
	defer finish()

	res, err := s.llm.Generate(ctx, prompt, GenerationParams{Temperature: 0.3, MaxOutputTokens: 2048, Timeout: verifyTimeout})
	if err != nil {
		rec.Error = strPtr(err.Error())
		return nil, err
	}
	rec.Response = &res.Text
	rec.Model = res.Model
	rec.TokenUsage = res.Usage

	var result VerificationResult
	if err := extractInto(res.Text, &result); err != nil {
		rec.Error = strPtr(err.Error())
		return nil, err
	}
	rec.Success = true
	rec.ResultCount = 1
	return &result, nil
}

// ApplyVerification merges the non-empty corrected fields into the stored
// entry and stamps lastVerifiedAt.
func (s *CatalogService) ApplyVerification(id string, fields *VerifiedFields) (*store.APIEntry, error) {
	entry, err := s.db.GetAPIByID(id)
	if err != nil {
		return nil, err
	}

	if fields != nil {
		setIfPresent(&entry.Name, fields.Name)
		setIfPresent(&entry.Provider, fields.Provider)
		setIfPresent(&entry.Category, fields.Category)
		setIfPresent(&entry.Description, fields.Description)
		setIfPresent(&entry.AuthType, fields.AuthType)
		setIfPresent(&entry.Pricing, fields.Pricing)
		setIfPresent(&entry.URL, fields.URL)
		setIfPresent(&entry.EndpointExample, fields.EndpointExample)
	}
	now := time.Now().UnixMilli()
	entry.LastVerifiedAt = &now

	if err := s.db.UpsertAPI(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateEntry replaces an entry's editable fields. The id, creation time,
// and provenance marker are immutable; lastEditedAt is stamped.
func (s *CatalogService) UpdateEntry(id string, updated *store.APIEntry) (*store.APIEntry, error) {
	existing, err := s.db.GetAPIByID(id)
	if err != nil {
		return nil, err
	}

	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.SearchKeyword = existing.SearchKeyword
	updated.LastCheckedAt = existing.LastCheckedAt
	updated.LastVerifiedAt = existing.LastVerifiedAt
	now := time.Now().UnixMilli()
	updated.LastEditedAt = &now

	if err := s.db.UpsertAPI(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// AddTag appends a tag unless it is already present (case-sensitive); a
// duplicate add leaves the entry untouched.
func (s *CatalogService) AddTag(id, tag string) (*store.APIEntry, error) {
	entry, err := s.db.GetAPIByID(id)
	if err != nil {
		return nil, err
	}
	if entry.HasTag(tag) {
		return entry, nil
	}
	entry.Tags = append(entry.Tags, tag)
	now := time.Now().UnixMilli()
	entry.LastEditedAt = &now
	if err := s.db.UpsertAPI(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// RemoveTag drops a tag; removing an absent tag is a no-op.
func (s *CatalogService) RemoveTag(id, tag string) (*store.APIEntry, error) {
	entry, err := s.db.GetAPIByID(id)
	if err != nil {
		return nil, err
	}
	if !entry.HasTag(tag) {
		return entry, nil
	}
	tags := make([]string, 0, len(entry.Tags)-1)
	for _, t := range entry.Tags {
		if t != tag {
			tags = append(tags, t)
		}
	}
	entry.Tags = tags
	now := time.Now().UnixMilli()
	entry.LastEditedAt = &now
	if err := s.db.UpsertAPI(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ToggleFavorite flips the favorite flag.
func (s *CatalogService) ToggleFavorite(id string) (*store.APIEntry, error) {
	entry, err := s.db.GetAPIByID(id)
	if err != nil {
		return nil, err
	}
	entry.IsFavorite = !entry.IsFavorite
	if err := s.db.UpsertAPI(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// extractInto recovers JSON from model output and decodes it into the shape
// the call site expects. A shape mismatch counts as a malformed response.
func extractInto(raw string, v any) error {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func strPtr(s string) *string { return &s }

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
