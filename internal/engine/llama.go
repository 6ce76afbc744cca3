package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LlamaClient calls an OpenAI-compatible llama.cpp server.
type LlamaClient struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client

	Stats *Stats
}

var (
	_ Engine    = (*LlamaClient)(nil)
	_ Tokenizer = (*LlamaClient)(nil)
)

func NewLlamaClient(baseURL, model, apiKey string, timeout time.Duration) *LlamaClient {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &LlamaClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		Stats: NewStats(time.Hour),
	}
}

// Model returns the configured model name.
func (c *LlamaClient) Model() string {
	return c.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type   string          `json:"type"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

type chatRequest struct {
	Model          string          `json:"model,omitempty"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate runs one chat completion.
func (c *LlamaClient) Generate(ctx context.Context, req Request) (Completion, error) {
	temperature := req.Temperature
	body := chatRequest{
		Model:       c.model,
		Temperature: &temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.User})
	if len(req.Schema) > 0 {
		body.ResponseFormat = &responseFormat{Type: "json_object", Schema: req.Schema}
	}

	start := time.Now()
	completion, err := c.generate(ctx, body)
	c.Stats.Record(time.Since(start).Milliseconds(), completion.Truncated, err != nil)
	return completion, err
}

func (c *LlamaClient) generate(ctx context.Context, body chatRequest) (Completion, error) {
	respBody, err := c.post(ctx, "/v1/chat/completions", body)
	if err != nil {
		return Completion{}, err
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return Completion{}, &Error{Kind: Crashed, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Error != nil {
		return Completion{}, &Error{Kind: Crashed, Err: fmt.Errorf("%s: %s", resp.Error.Type, resp.Error.Message)}
	}
	if len(resp.Choices) == 0 {
		return Completion{}, &Error{Kind: Crashed, Err: fmt.Errorf("no choices in response")}
	}

	choice := resp.Choices[0]
	return Completion{
		Text:      choice.Message.Content,
		Truncated: choice.FinishReason == "length",
	}, nil
}

type tokenizeRequest struct {
	Content string `json:"content"`
}

type tokenizeResponse struct {
	Tokens []json.RawMessage `json:"tokens"`
}

// CountTokens asks the server to tokenize text with the loaded model.
func (c *LlamaClient) CountTokens(ctx context.Context, text string) (int, error) {
	respBody, err := c.post(ctx, "/tokenize", tokenizeRequest{Content: text})
	if err != nil {
		return 0, err
	}
	var resp tokenizeResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, &Error{Kind: Crashed, Err: fmt.Errorf("decode tokenize response: %w", err)}
	}
	return len(resp.Tokens), nil
}

func (c *LlamaClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: Crashed, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &Error{Kind: Crashed, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return respBody, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return nil, &Error{Kind: ResourceExhausted, StatusCode: resp.StatusCode, Err: errors.New(truncate(string(respBody), 200))}
	default:
		return nil, &Error{Kind: Crashed, StatusCode: resp.StatusCode, Err: errors.New(truncate(string(respBody), 200))}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Close releases resources.
func (c *LlamaClient) Close() {
	c.httpClient.CloseIdleConnections()
}
