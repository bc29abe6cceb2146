package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"
)

const (
	defaultMaxTokens = 1024
	defaultTimeout   = 60 * time.Second

	// recordQueryTool is the single forced tool whose input is the
	// structured {sql_query, explanation} response.
	recordQueryTool = "record_query"
)

// AnthropicConfig holds configuration for the Claude provider variant.
type AnthropicConfig struct {
	Logger    *slog.Logger
	Client    anthropic.Client
	Model     anthropic.Model
	MaxTokens int64
	Timeout   time.Duration
}

func (c *AnthropicConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// AnthropicClient implements Client using the Anthropic API with a forced
// tool call for structured output.
type AnthropicClient struct {
	log       *slog.Logger
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration
}

func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &AnthropicClient{
		log:       cfg.Logger,
		client:    cfg.Client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		timeout:   timeout,
	}, nil
}

// Synthesize sends the question to Claude and decodes the forced tool call.
// An empty sql_query is a successful decline, not an error.
func (c *AnthropicClient) Synthesize(ctx context.Context, question string) (Query, error) {
	if err := validateQuestion(question); err != nil {
		return Query{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	toolParam := anthropic.ToolParam{
		Name:        recordQueryTool,
		Description: anthropic.Opt("Record the synthesized SQL query and its explanation."),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type: "object",
			Properties: map[string]any{
				"sql_query":   map[string]any{"type": "string", "description": "The SQL statement, or empty when the question cannot be answered from the dataset."},
				"explanation": map[string]any{"type": "string", "description": "Plain-language explanation shown to the user."},
			},
			Required: []string{"sql_query", "explanation"},
		},
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(question))),
		},
		Tools: []anthropic.ToolUnionParam{
			{OfTool: &toolParam},
		},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: recordQueryTool},
		},
	}

	start := time.Now()
	var msg *anthropic.Message
	operation := func() error {
		var err error
		msg, err = c.client.Messages.New(ctx, params)
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)); err != nil {
		c.log.Error("synth: anthropic call failed", "model", c.model, "duration", time.Since(start), "error", err)
		return Query{}, fmt.Errorf("%w: anthropic API error: %v", ErrSynthesis, err)
	}
	c.log.Debug("synth: anthropic call completed", "model", c.model, "duration", time.Since(start), "stopReason", msg.StopReason)

	for _, block := range msg.Content {
		tu := block.AsToolUse()
		if tu.ID == "" || tu.Name != recordQueryTool {
			continue
		}
		var q Query
		if err := json.Unmarshal(tu.Input, &q); err != nil {
			return Query{}, fmt.Errorf("%w: malformed tool input: %v", ErrSynthesis, err)
		}
		q.SQL = cleanSQL(q.SQL)
		return q, nil
	}

	return Query{}, fmt.Errorf("%w: no %s tool call in response", ErrSynthesis, recordQueryTool)
}
