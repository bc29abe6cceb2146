package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boettiger-lab/landvote/pkg/mapstyle"
	"github.com/boettiger-lab/landvote/pkg/pipeline"
	"github.com/boettiger-lab/landvote/pkg/schema"
	"github.com/boettiger-lab/landvote/pkg/synth"
	"github.com/boettiger-lab/landvote/pkg/votes"
)

// AskRequest is one submitted question.
type AskRequest struct {
	Question string `json:"question"`
	Model    string `json:"model"`
	Consent  bool   `json:"consent"`
}

// AskResponse is the full interaction result returned to the UI. Declined
// and empty outcomes are normal responses, not errors.
type AskResponse struct {
	Outcome           pipeline.Outcome `json:"outcome"`
	SQLQuery          string           `json:"sqlQuery,omitempty"`
	Explanation       string           `json:"explanation,omitempty"`
	Columns           []string         `json:"columns,omitempty"`
	Rows              [][]any          `json:"rows,omitempty"`
	ReferencedColumns []string         `json:"referencedColumns,omitempty"`
	IDs               []int64          `json:"ids,omitempty"`
	Bounds            *votes.Bounds    `json:"bounds,omitempty"`
	Highlight         *mapstyle.Style  `json:"highlight,omitempty"`
	Error             string           `json:"error,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	model, err := synth.ParseModelChoice(req.Model)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	interaction, err := s.pipeline.Run(r.Context(), pipeline.Request{
		Question: req.Question,
		Model:    model,
		Consent:  req.Consent,
	})
	if err != nil {
		switch {
		case interaction != nil && interaction.Outcome == pipeline.OutcomeExecutionFailed:
			// The literal SQL goes back with the error so prompt or
			// schema drift can be diagnosed.
			writeJSON(w, http.StatusUnprocessableEntity, AskResponse{
				Outcome:     interaction.Outcome,
				SQLQuery:    interaction.Query.SQL,
				Explanation: interaction.Query.Explanation,
				Error:       err.Error(),
			})
		case errors.Is(err, synth.ErrQuestionTooLong):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, synth.ErrSynthesis):
			s.log.Error("server: synthesis failed", "error", err)
			http.Error(w, "query synthesis failed", http.StatusBadGateway)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	resp := AskResponse{
		Outcome:           interaction.Outcome,
		SQLQuery:          interaction.Query.SQL,
		Explanation:       interaction.Query.Explanation,
		ReferencedColumns: interaction.ReferencedColumns,
		IDs:               interaction.IDs,
		Bounds:            interaction.Bounds,
	}
	if interaction.Result != nil {
		resp.Columns = interaction.Result.Columns
		resp.Rows = tabulate(interaction.Result)
	}
	if interaction.Outcome == pipeline.OutcomeSpatial {
		style := mapstyle.Highlight(interaction.IDs, mapstyle.HighlightPaint(), mapstyle.TileSource{
			Name: schema.TableName,
			URL:  mapstyle.VotesTiles,
		})
		resp.Highlight = &style
	}
	writeJSON(w, http.StatusOK, resp)
}

// tabulate flattens result rows into column order for the UI table.
func tabulate(res *votes.Result) [][]any {
	rows := make([][]any, 0, len(res.Rows))
	for _, row := range res.Rows {
		values := make([]any, len(res.Columns))
		for i, col := range res.Columns {
			values[i] = row[col]
		}
		rows = append(rows, values)
	}
	return rows
}

// StylesResponse carries the map styles for every jurisdiction level plus
// the optional overlays.
type StylesResponse struct {
	Styles   []mapstyle.Style          `json:"styles"`
	Overlays map[string]mapstyle.Style `json:"overlays"`
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	minYear, maxYear, err := yearRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	mode := r.URL.Query().Get("mode")
	var build func(string, int, int) mapstyle.Style
	switch mode {
	case "", "status":
		build = mapstyle.Status
	case "party":
		build = mapstyle.Party
	default:
		http.Error(w, "mode must be status or party", http.StatusBadRequest)
		return
	}

	resp := StylesResponse{
		Overlays: map[string]mapstyle.Style{
			"party":     mapstyle.PartyOverlay(maxYear),
			"svi":       mapstyle.SVIOverlay(),
			"justice40": mapstyle.Justice40Overlay(),
		},
	}
	for _, jurisdiction := range schema.Jurisdictions {
		resp.Styles = append(resp.Styles, build(jurisdiction, minYear, maxYear))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePartyPassRate(w http.ResponseWriter, r *http.Request) {
	series, err := s.charts.PartyPassRate(r.Context())
	if err != nil {
		s.log.Error("server: party pass rate failed", "error", err)
		http.Error(w, "failed to compute chart", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"series": series})
}

func (s *Server) handleCumulativeFunding(w http.ResponseWriter, r *http.Request) {
	series, err := s.charts.CumulativeFunding(r.Context())
	if err != nil {
		s.log.Error("server: cumulative funding failed", "error", err)
		http.Error(w, "failed to compute chart", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"series": series})
}

// StatsResponse carries the dashboard header numbers.
type StatsResponse struct {
	MinYear       int     `json:"minYear"`
	MaxYear       int     `json:"maxYear"`
	Passed        int     `json:"passed"`
	Total         int     `json:"total"`
	PercentPassed float64 `json:"percentPassed"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	minYear, maxYear, err := yearRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	passed, total, err := s.stats.PassRate(r.Context(), minYear, maxYear)
	if err != nil {
		s.log.Error("server: pass rate failed", "error", err)
		http.Error(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{MinYear: minYear, MaxYear: maxYear, Passed: passed, Total: total}
	if total > 0 {
		resp.PercentPassed = float64(passed) / float64(total) * 100
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
