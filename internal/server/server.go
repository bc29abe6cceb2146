// Package server exposes the query pipeline and dashboard aggregates as a
// JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/boettiger-lab/landvote/pkg/charts"
	"github.com/boettiger-lab/landvote/pkg/pipeline"
	"github.com/boettiger-lab/landvote/pkg/votes"
)

// Runner executes one interaction; satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Interaction, error)
}

// Stats provides the dashboard header numbers; satisfied by *votes.Store.
type Stats interface {
	PassRate(ctx context.Context, minYear, maxYear int) (passed, total int, err error)
}

// Charts provides the summary chart series; satisfied by *charts.Service.
type Charts interface {
	PartyPassRate(ctx context.Context) ([]charts.PartyYear, error)
	CumulativeFunding(ctx context.Context) ([]charts.FundingYear, error)
}

// Config holds the server's collaborators.
type Config struct {
	Logger     *slog.Logger
	ListenAddr string
	Pipeline   Runner
	Stats      Stats
	Charts     Charts
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Pipeline == nil {
		return fmt.Errorf("pipeline is required")
	}
	if c.Stats == nil {
		return fmt.Errorf("stats provider is required")
	}
	if c.Charts == nil {
		return fmt.Errorf("charts provider is required")
	}
	return nil
}

// Server serves the dashboard API.
type Server struct {
	log      *slog.Logger
	addr     string
	pipeline Runner
	stats    Stats
	charts   Charts
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Server{
		log:      cfg.Logger,
		addr:     cfg.ListenAddr,
		pipeline: cfg.Pipeline,
		stats:    cfg.Stats,
		charts:   cfg.Charts,
	}, nil
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("GET /api/styles", s.handleStyles)
	mux.HandleFunc("GET /api/charts/party-pass-rate", s.handlePartyPassRate)
	mux.HandleFunc("GET /api/charts/cumulative-funding", s.handleCumulativeFunding)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// yearRange parses min_year/max_year query params, defaulting to the full
// extent of the dataset.
func yearRange(r *http.Request) (int, int, error) {
	minYear, err := intParam(r, "min_year", 1988)
	if err != nil {
		return 0, 0, err
	}
	maxYear, err := intParam(r, "max_year", 2024)
	if err != nil {
		return 0, 0, err
	}
	if minYear > maxYear {
		return 0, 0, fmt.Errorf("min_year %d is after max_year %d", minYear, maxYear)
	}
	return minYear, maxYear, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

var _ Runner = (*pipeline.Pipeline)(nil)
var _ Stats = (*votes.Store)(nil)
var _ Charts = (*charts.Service)(nil)
