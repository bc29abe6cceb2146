package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// OllamaConfig holds configuration for the local Ollama provider variant.
type OllamaConfig struct {
	Logger     *slog.Logger
	BaseURL    string // e.g. "http://localhost:11434"
	Model      string // e.g. "llama3.1"
	HTTPClient *http.Client
	Timeout    time.Duration
}

func (c *OllamaConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// OllamaClient implements Client against a local Ollama server using JSON
// response formatting. Local models need the output contract spelled out in
// the prompt; there is no forced tool call here.
type OllamaClient struct {
	log        *slog.Logger
	baseURL    string
	model      string
	httpClient *http.Client
	timeout    time.Duration
}

func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &OllamaClient{
		log:        cfg.Logger,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: httpClient,
		timeout:    timeout,
	}, nil
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
}

const ollamaOutputDirective = `

Respond with a single JSON object of the form
{"sql_query": "...", "explanation": "..."} and nothing else.`

// Synthesize sends the question to Ollama and decodes the JSON response.
func (c *OllamaClient) Synthesize(ctx context.Context, question string) (Query, error) {
	if err := validateQuestion(question); err != nil {
		return Query{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := ollamaChatRequest{
		Model: c.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt() + ollamaOutputDirective},
			{Role: "user", Content: userPrompt(question)},
		},
		Stream: false,
		Format: "json",
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Query{}, fmt.Errorf("%w: failed to encode request: %v", ErrSynthesis, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return Query{}, fmt.Errorf("%w: failed to create request: %v", ErrSynthesis, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("synth: ollama call failed", "model", c.model, "error", err)
		return Query{}, fmt.Errorf("%w: ollama request failed: %v", ErrSynthesis, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Query{}, fmt.Errorf("%w: failed to read response: %v", ErrSynthesis, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Query{}, fmt.Errorf("%w: ollama returned status %d: %s", ErrSynthesis, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return Query{}, fmt.Errorf("%w: malformed ollama response: %v", ErrSynthesis, err)
	}
	c.log.Debug("synth: ollama call completed", "model", c.model, "duration", time.Since(start))

	var q Query
	if err := json.Unmarshal([]byte(chatResp.Message.Content), &q); err != nil {
		return Query{}, fmt.Errorf("%w: malformed structured response: %v", ErrSynthesis, err)
	}
	q.SQL = cleanSQL(q.SQL)
	return q, nil
}
