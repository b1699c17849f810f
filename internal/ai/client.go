package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterClient talks to OpenRouter's OpenAI-compatible chat completions API.
type OpenRouterClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	retry      Backoff
}

// NewOpenRouterClient returns a client for the public OpenRouter endpoint.
func NewOpenRouterClient(apiKey string, httpTimeout time.Duration, retry Backoff) *OpenRouterClient {
	return NewOpenRouterClientWithBaseURL(apiKey, httpTimeout, retry, "")
}

// NewOpenRouterClientWithBaseURL allows pointing the client at another
// compatible endpoint (tests, proxies).
func NewOpenRouterClientWithBaseURL(apiKey string, httpTimeout time.Duration, retry Backoff, baseURL string) *OpenRouterClient {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	return &OpenRouterClient{
		httpClient: &http.Client{Timeout: httpTimeout},
		apiKey:     apiKey,
		baseURL:    baseURL,
		retry:      retry.withDefaults(),
	}
}

func (c *OpenRouterClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, missingKeyError(ProviderOpenRouter)
	}
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.baseURL + "/chat/completions"

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("HTTP-Referer", "https://github.com/KaramelBytes/vizloom")
		httpReq.Header.Set("X-Title", "vizloom")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isRetryableNetErr(err) && attempt < c.retry.Attempts {
				if err := sleepCtx(ctx, c.retry.delay(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &UnreachableError{Host: c.baseURL, Err: err}
		}

		out, wait, err := c.readResponse(resp)
		if err == nil {
			return out, nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && isRetryableStatus(apiErr.StatusCode) && attempt < c.retry.Attempts {
			if wait <= 0 {
				wait = c.retry.delay(attempt)
			}
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}
		return nil, err
	}
}

// readResponse decodes a success body or a classified error plus the
// server-requested wait.
func (c *OpenRouterClient) readResponse(resp *http.Response) (*GenerateResponse, time.Duration, error) {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		wait := retryAfter(resp)
		return nil, wait, classifyAPIError(readAPIError(resp), wait)
	}
	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, 0, fmt.Errorf("decode response: %w", err)
	}
	out.RequestID = extractRequestID(resp)
	return &out, 0, nil
}
