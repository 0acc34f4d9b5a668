package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/org/archpilot/pkg/models"
)

var _ Client = (*GeminiClient)(nil)

// GeminiClient calls the Google Generative Language API.
type GeminiClient struct {
	baseURL string
	http    *http.Client
}

// NewGeminiClient creates a client. baseURL may be empty for the public API.
func NewGeminiClient(httpClient *http.Client, baseURL string) *GeminiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiClient{baseURL: baseURL, http: httpClient}
}

func (c *GeminiClient) Generate(ctx context.Context, apiKey string, req *models.DesignRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = "gemini-1.5-pro"
	}
	payload := map[string]any{
		"systemInstruction": map[string]any{
			"parts": []map[string]string{{"text": systemPrompt}},
		},
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": req.Prompt}}},
		},
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	body, status, err := postJSON(ctx, c.http, url, payload, map[string]string{
		"x-goog-api-key": apiKey,
	})
	if err != nil {
		return "", &Error{Provider: models.ProviderGemini, Message: err.Error()}
	}
	if status != http.StatusOK {
		return "", &Error{Provider: models.ProviderGemini, StatusCode: status, Message: errorMessage(body)}
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil ||
		len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", &Error{Provider: models.ProviderGemini, StatusCode: status, Message: "unexpected response shape"}
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
