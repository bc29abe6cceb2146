package synth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func ollamaTestClient(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewOllamaClient(OllamaConfig{
		Logger:  slog.New(slog.NewTextHandler(os.Stderr, nil)),
		BaseURL: srv.URL,
		Model:   "llama3.1",
	})
	require.NoError(t, err)
	return c
}

func ollamaReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	err := json.NewEncoder(w).Encode(ollamaChatResponse{
		Message: ollamaMessage{Role: "assistant", Content: content},
	})
	require.NoError(t, err)
}

func TestSynth_Ollama_Synthesize(t *testing.T) {
	t.Parallel()

	t.Run("decodes the structured response and cleans the SQL", func(t *testing.T) {
		t.Parallel()

		var req ollamaChatRequest
		c := ollamaTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/chat", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			ollamaReply(t, w, `{"sql_query": "SELECT \"year\" FROM votes; ", "explanation": "All years."}`)
		})

		q, err := c.Synthesize(context.Background(), "which years are covered?")
		require.NoError(t, err)
		require.Equal(t, `SELECT "year" FROM votes`, q.SQL)
		require.Equal(t, "All years.", q.Explanation)

		// The request carries the full contract: model, JSON formatting and
		// the schema-bearing system prompt.
		require.Equal(t, "llama3.1", req.Model)
		require.Equal(t, "json", req.Format)
		require.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		require.Contains(t, req.Messages[0].Content, "SQL dialect: DuckDB")
		require.Contains(t, req.Messages[1].Content, "which years are covered?")
	})

	t.Run("empty sql_query is a decline, not an error", func(t *testing.T) {
		t.Parallel()

		c := ollamaTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			ollamaReply(t, w, `{"sql_query": "", "explanation": "This dataset covers ballot measures, not weather."}`)
		})

		q, err := c.Synthesize(context.Background(), "what is the weather today")
		require.NoError(t, err)
		require.True(t, q.Declined())
		require.NotEmpty(t, q.Explanation)
	})

	t.Run("non-JSON content is a synthesis failure", func(t *testing.T) {
		t.Parallel()

		c := ollamaTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			ollamaReply(t, w, "here is your query: SELECT 1")
		})

		_, err := c.Synthesize(context.Background(), "anything")
		require.ErrorIs(t, err, ErrSynthesis)
	})

	t.Run("server error is a synthesis failure", func(t *testing.T) {
		t.Parallel()

		c := ollamaTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		})

		_, err := c.Synthesize(context.Background(), "anything")
		require.ErrorIs(t, err, ErrSynthesis)
	})

	t.Run("question is validated before any request", func(t *testing.T) {
		t.Parallel()

		requests := 0
		c := ollamaTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			requests++
		})

		_, err := c.Synthesize(context.Background(), "")
		require.Error(t, err)
		require.Zero(t, requests)
	})
}
