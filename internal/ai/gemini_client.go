package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// DefaultGeminiModel is the model used when none is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiClient calls Google's Gemini API through the genai SDK.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      Backoff
}

// NewGeminiClient returns a client for the public Gemini API.
func NewGeminiClient(apiKey string, httpTimeout time.Duration, retry Backoff) *GeminiClient {
	return NewGeminiClientWithBaseURL(apiKey, httpTimeout, retry, "")
}

// NewGeminiClientWithBaseURL overrides the API endpoint (used in tests).
func NewGeminiClientWithBaseURL(apiKey string, httpTimeout time.Duration, retry Backoff, baseURL string) *GeminiClient {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	return &GeminiClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: httpTimeout},
		retry:      retry.withDefaults(),
	}
}

func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, missingKeyError(ProviderGemini)
	}
	model := req.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      c.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  c.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: c.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	var system, user []string
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		user = append(user, m.Content)
	}
	cfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	contents := genai.Text(strings.Join(user, "\n\n"))

	for attempt := 1; ; attempt++ {
		resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
		if err == nil {
			return geminiResponse(model, resp), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		cerr := classifyGeminiError(err, c.baseURL)
		if retryableGemini(cerr) && attempt < c.retry.Attempts {
			if err := sleepCtx(ctx, c.retry.delay(attempt)); err != nil {
				return nil, err
			}
			continue
		}
		return nil, cerr
	}
}

func geminiResponse(model string, resp *genai.GenerateContentResponse) *GenerateResponse {
	out := &GenerateResponse{
		ID:        resp.ResponseID,
		Model:     model,
		Choices:   []Choice{{Message: Message{Role: "assistant", Content: resp.Text()}}},
		RequestID: resp.ResponseID,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out
}

// classifyGeminiError converts SDK errors into this package's typed errors.
func classifyGeminiError(err error, host string) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(&APIError{
			StatusCode: apiErr.Code,
			Code:       apiErr.Status,
			Message:    apiErr.Message,
		}, 0)
	}
	if host == "" {
		host = "generativelanguage.googleapis.com"
	}
	return &UnreachableError{Host: host, Err: err}
}

func retryableGemini(err error) bool {
	var rl *RateLimitError
	var se *ServerError
	var ue *UnreachableError
	if errors.As(err, &ue) {
		return isRetryableNetErr(ue.Err)
	}
	return errors.As(err, &rl) || errors.As(err, &se)
}
