package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/org/archpilot/pkg/models"
)

var _ Client = (*AnthropicClient)(nil)

// AnthropicClient calls the Anthropic messages API.
type AnthropicClient struct {
	baseURL string
	http    *http.Client
}

// NewAnthropicClient creates a client. baseURL may be empty for the public API.
func NewAnthropicClient(httpClient *http.Client, baseURL string) *AnthropicClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	return &AnthropicClient{baseURL: baseURL, http: httpClient}
}

func (c *AnthropicClient) Generate(ctx context.Context, apiKey string, req *models.DesignRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	payload := map[string]any{
		"model":      model,
		"max_tokens": 4096,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}

	body, status, err := postJSON(ctx, c.http, c.baseURL+"/messages", payload, map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", &Error{Provider: models.ProviderAnthropic, Message: err.Error()}
	}
	if status != http.StatusOK {
		return "", &Error{Provider: models.ProviderAnthropic, StatusCode: status, Message: errorMessage(body)}
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Content) == 0 {
		return "", &Error{Provider: models.ProviderAnthropic, StatusCode: status, Message: "unexpected response shape"}
	}
	return parsed.Content[0].Text, nil
}

// NewRegistry wires one client per supported provider over a shared HTTP
// client.
func NewRegistry(httpClient *http.Client) map[models.Provider]Client {
	return map[models.Provider]Client{
		models.ProviderOpenAI:    NewOpenAIClient(httpClient, ""),
		models.ProviderGemini:    NewGeminiClient(httpClient, ""),
		models.ProviderAnthropic: NewAnthropicClient(httpClient, ""),
	}
}
