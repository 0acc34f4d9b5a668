package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/org/archpilot/pkg/models"
)

const systemPrompt = "You are a software architect. Produce a structured system-architecture design for the following requirements."

var _ Client = (*OpenAIClient)(nil)

// OpenAIClient calls the OpenAI chat completions API.
type OpenAIClient struct {
	baseURL string
	http    *http.Client
}

// NewOpenAIClient creates a client. baseURL may be empty for the public API.
func NewOpenAIClient(httpClient *http.Client, baseURL string) *OpenAIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{baseURL: baseURL, http: httpClient}
}

func (c *OpenAIClient) Generate(ctx context.Context, apiKey string, req *models.DesignRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = "gpt-4o"
	}
	payload := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": req.Prompt},
		},
	}

	body, status, err := postJSON(ctx, c.http, c.baseURL+"/chat/completions", payload, map[string]string{
		"Authorization": "Bearer " + apiKey,
	})
	if err != nil {
		return "", &Error{Provider: models.ProviderOpenAI, Message: err.Error()}
	}
	if status != http.StatusOK {
		return "", &Error{Provider: models.ProviderOpenAI, StatusCode: status, Message: errorMessage(body)}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return "", &Error{Provider: models.ProviderOpenAI, StatusCode: status, Message: "unexpected response shape"}
	}
	return parsed.Choices[0].Message.Content, nil
}

// postJSON sends a JSON POST and returns the raw body and status. A
// transport-level failure (including a context deadline) comes back as err.
func postJSON(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// errorMessage extracts a provider error message from a JSON error body,
// falling back to the raw body.
func errorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("%s", body)
}
