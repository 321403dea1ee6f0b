package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/apiary-labs/apiary/internal/config"
	"github.com/apiary-labs/apiary/internal/store"
)

const defaultGenerationTimeout = 60 * time.Second

// GenerationParams bound one generation call.
type GenerationParams struct {
	Temperature     float32
	MaxOutputTokens int32
	Timeout         time.Duration
}

// GenerationResult is the raw outcome of one successful generation call.
type GenerationResult struct {
	Text  string
	Model string
	Usage *store.TokenUsage
}

// Generator is the opaque generation endpoint: one attempt per call, bounded
// by the params timeout, no retry or backoff.
type Generator interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (*GenerationResult, error)
	ModelID() string
}

// LLMService talks to Gemini. The credential and model selection are read
// from the preferences store before every call, falling back to the process
// configuration, so a key saved through the settings endpoint takes effect
// without a restart.
type LLMService struct {
	prefs *store.SQLiteStore
}

func NewLLMService(prefs *store.SQLiteStore) *LLMService {
	return &LLMService{prefs: prefs}
}

func (s *LLMService) apiKey() string {
	if key, err := s.prefs.GetPreference(store.PrefAPIKey); err == nil && key != "" {
		return key
	}
	return config.AppConfig.GeminiAPIKey
}

// ModelID returns the model the next call will use.
func (s *LLMService) ModelID() string {
	if model, err := s.prefs.GetPreference(store.PrefModel); err == nil && model != "" {
		return model
	}
	return config.AppConfig.GeminiModel
}

// Generate issues a single generation call and returns the raw response
// text. Fails closed with ErrNoAPIKey when no credential is configured,
// ErrTimeout on deadline, and *UpstreamError for transport or endpoint
// failures.
func (s *LLMService) Generate(ctx context.Context, prompt string, params GenerationParams) (*GenerationResult, error) {
	apiKey := s.apiKey()
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GenAI client: %v", ErrTransport, err)
	}
	defer client.Close()

	modelID := s.ModelID()
	model := client.GenerativeModel(modelID)
	if params.Temperature > 0 {
		temp := params.Temperature
		model.GenerationConfig.Temperature = &temp
	}
	if params.MaxOutputTokens > 0 {
		maxTokens := params.MaxOutputTokens
		model.GenerationConfig.MaxOutputTokens = &maxTokens
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, &UpstreamError{Message: apiErr.Message, Err: err}
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, &UpstreamError{Message: "model returned an empty response"}
	}

	result := &GenerationResult{Text: text, Model: modelID}
	if resp.UsageMetadata != nil {
		result.Usage = &store.TokenUsage{
			PromptTokens:     int64(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int64(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return result, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
