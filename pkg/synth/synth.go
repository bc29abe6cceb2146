// Package synth turns a natural-language question into a SQL query against
// the votes table using a hosted language model. Synthesis never executes
// anything; it only produces a statement and an explanation.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxQuestionLen bounds user questions, in runes.
const MaxQuestionLen = 300

// ErrSynthesis marks remote-call or malformed-response failures. It is
// distinct from a declined synthesis, which is a successful result with an
// empty SQL statement.
var ErrSynthesis = errors.New("synthesis failed")

// ErrQuestionTooLong is returned before any remote call when the question
// exceeds MaxQuestionLen.
var ErrQuestionTooLong = fmt.Errorf("question exceeds %d characters", MaxQuestionLen)

// Query is the result of one synthesis: a statement plus a plain-language
// explanation the UI shows verbatim. It is never mutated after creation.
type Query struct {
	SQL         string `json:"sql_query"`
	Explanation string `json:"explanation"`
}

// Declined reports whether the model chose not to produce SQL, e.g. for an
// off-topic question. The explanation still carries the visible response.
func (q Query) Declined() bool {
	return q.SQL == ""
}

// Client synthesizes SQL from a question. Implementations are provider
// variants behind the same contract; provider choice has no effect on the
// contract shape.
type Client interface {
	Synthesize(ctx context.Context, question string) (Query, error)
}

// ModelChoice selects which provider variant answers a question.
type ModelChoice string

const (
	ModelClaude ModelChoice = "claude"
	ModelOllama ModelChoice = "ollama"
)

// ParseModelChoice maps a user-supplied selector value to a ModelChoice.
func ParseModelChoice(s string) (ModelChoice, error) {
	switch ModelChoice(strings.ToLower(strings.TrimSpace(s))) {
	case ModelClaude, "":
		return ModelClaude, nil
	case ModelOllama:
		return ModelOllama, nil
	default:
		return "", fmt.Errorf("unknown model choice %q", s)
	}
}

// Selector dispatches a ModelChoice to its configured provider. Providers
// are constructed once at startup; there is no registry.
type Selector struct {
	Claude Client
	Ollama Client
}

// For returns the provider for the given choice, or an error when that
// provider is not configured.
func (s *Selector) For(choice ModelChoice) (Client, error) {
	switch choice {
	case ModelClaude:
		if s.Claude == nil {
			return nil, fmt.Errorf("claude provider is not configured")
		}
		return s.Claude, nil
	case ModelOllama:
		if s.Ollama == nil {
			return nil, fmt.Errorf("ollama provider is not configured")
		}
		return s.Ollama, nil
	default:
		return nil, fmt.Errorf("unknown model choice %q", choice)
	}
}

func validateQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("question is empty")
	}
	if utf8.RuneCountInString(question) > MaxQuestionLen {
		return ErrQuestionTooLong
	}
	return nil
}

// cleanSQL normalizes a synthesized statement by trimming whitespace and a
// trailing semicolon.
func cleanSQL(sql string) string {
	return strings.TrimSuffix(strings.TrimSpace(sql), ";")
}
