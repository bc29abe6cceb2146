package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boettiger-lab/landvote/pkg/charts"
	"github.com/boettiger-lab/landvote/pkg/pipeline"
	"github.com/boettiger-lab/landvote/pkg/synth"
	"github.com/boettiger-lab/landvote/pkg/votes"
)

type fakeRunner struct {
	interaction *pipeline.Interaction
	err         error
	lastReq     pipeline.Request
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request) (*pipeline.Interaction, error) {
	f.lastReq = req
	return f.interaction, f.err
}

type fakeStats struct {
	passed, total int
	err           error
}

func (f *fakeStats) PassRate(ctx context.Context, minYear, maxYear int) (int, int, error) {
	return f.passed, f.total, f.err
}

type fakeCharts struct {
	party   []charts.PartyYear
	funding []charts.FundingYear
	err     error
}

func (f *fakeCharts) PartyPassRate(ctx context.Context) ([]charts.PartyYear, error) {
	return f.party, f.err
}

func (f *fakeCharts) CumulativeFunding(ctx context.Context) ([]charts.FundingYear, error) {
	return f.funding, f.err
}

func testServer(t *testing.T, runner Runner) *Server {
	t.Helper()
	s, err := New(Config{
		Logger:     slog.New(slog.NewTextHandler(os.Stderr, nil)),
		ListenAddr: "127.0.0.1:0",
		Pipeline:   runner,
		Stats:      &fakeStats{passed: 6, total: 10},
		Charts:     &fakeCharts{party: []charts.PartyYear{{Year: 2000, Party: "Democrat", PassFraction: 0.5}}},
	})
	require.NoError(t, err)
	return s
}

func postAsk(t *testing.T, s *Server, body AskRequest) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Ask(t *testing.T) {
	t.Parallel()

	t.Run("spatial interaction returns ids, bounds and a highlight style", func(t *testing.T) {
		t.Parallel()

		runner := &fakeRunner{interaction: &pipeline.Interaction{
			Outcome: pipeline.OutcomeSpatial,
			Query:   synth.Query{SQL: `SELECT "landvote_id" FROM votes`, Explanation: "All measures."},
			Result: &votes.Result{
				Columns: []string{"landvote_id"},
				Rows:    []map[string]any{{"landvote_id": int64(3)}, {"landvote_id": int64(7)}},
				Count:   2,
			},
			IDs:               []int64{3, 7},
			ReferencedColumns: []string{"landvote_id"},
			Bounds:            &votes.Bounds{MinLon: -122, MinLat: 36, MaxLon: -119, MaxLat: 38},
		}}
		rec := postAsk(t, testServer(t, runner), AskRequest{Question: "show everything", Model: "claude", Consent: true})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp AskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, pipeline.OutcomeSpatial, resp.Outcome)
		require.Equal(t, []int64{3, 7}, resp.IDs)
		require.NotNil(t, resp.Bounds)
		require.NotNil(t, resp.Highlight)
		require.Equal(t, [][]any{{float64(3)}, {float64(7)}}, resp.Rows)

		// Consent and model choice reach the pipeline.
		require.True(t, runner.lastReq.Consent)
		require.Equal(t, synth.ModelClaude, runner.lastReq.Model)
	})

	t.Run("declined interaction is a 200 without error styling", func(t *testing.T) {
		t.Parallel()

		runner := &fakeRunner{interaction: &pipeline.Interaction{
			Outcome: pipeline.OutcomeDeclined,
			Query:   synth.Query{Explanation: "This dataset covers ballot measures."},
		}}
		rec := postAsk(t, testServer(t, runner), AskRequest{Question: "what is the weather today"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp AskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, pipeline.OutcomeDeclined, resp.Outcome)
		require.Empty(t, resp.Error)
		require.Nil(t, resp.Highlight)
	})

	t.Run("execution failure surfaces the literal SQL", func(t *testing.T) {
		t.Parallel()

		badSQL := "SELECT nope FROM votes"
		runner := &fakeRunner{
			interaction: &pipeline.Interaction{
				Outcome: pipeline.OutcomeExecutionFailed,
				Query:   synth.Query{SQL: badSQL},
			},
			err: &votes.ExecError{SQL: badSQL, Err: fmt.Errorf("column nope not found")},
		}
		rec := postAsk(t, testServer(t, runner), AskRequest{Question: "broken"})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var resp AskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, badSQL, resp.SQLQuery)
		require.NotEmpty(t, resp.Error)
	})

	t.Run("synthesis failure maps to bad gateway", func(t *testing.T) {
		t.Parallel()

		runner := &fakeRunner{err: fmt.Errorf("%w: connection reset", synth.ErrSynthesis)}
		rec := postAsk(t, testServer(t, runner), AskRequest{Question: "anything"})
		require.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("unknown model is rejected before the pipeline runs", func(t *testing.T) {
		t.Parallel()

		runner := &fakeRunner{}
		rec := postAsk(t, testServer(t, runner), AskRequest{Question: "q", Model: "gpt"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Empty(t, runner.lastReq.Question)
	})
}

func TestServer_Styles(t *testing.T) {
	t.Parallel()

	s := testServer(t, &fakeRunner{})

	t.Run("status mode returns one style per jurisdiction", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/api/styles?mode=status&min_year=2020&max_year=2024", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp StylesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Styles, 4)
		require.Contains(t, resp.Overlays, "justice40")
	})

	t.Run("trailing garbage in a year param is rejected", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/api/styles?min_year=2020abc", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("inverted year range is rejected", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/api/styles?min_year=2024&max_year=1988", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown mode is rejected", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/api/styles?mode=rainbow", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_Stats(t *testing.T) {
	t.Parallel()

	s := testServer(t, &fakeRunner{})
	req := httptest.NewRequest(http.MethodGet, "/api/stats?min_year=2020&max_year=2024", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 6, resp.Passed)
	require.Equal(t, 10, resp.Total)
	require.InDelta(t, 60.0, resp.PercentPassed, 1e-9)
}

func TestServer_Charts(t *testing.T) {
	t.Parallel()

	s := testServer(t, &fakeRunner{})
	req := httptest.NewRequest(http.MethodGet, "/api/charts/party-pass-rate", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"Democrat"`)
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	s := testServer(t, &fakeRunner{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
