// Package pipeline orchestrates one user interaction: synthesize SQL from a
// question, execute it, classify the result, and extract what the map needs.
// Interactions are synchronous and sequential; the query log is the only
// side channel and never blocks the primary flow.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/boettiger-lab/landvote/pkg/logstore"
	"github.com/boettiger-lab/landvote/pkg/synth"
	"github.com/boettiger-lab/landvote/pkg/votes"
)

// Outcome is the terminal state of one interaction.
type Outcome string

const (
	// OutcomeSynthesisFailed: the remote model call failed or returned a
	// malformed response. No SQL ran.
	OutcomeSynthesisFailed Outcome = "synthesis_failed"

	// OutcomeDeclined: the model returned no SQL; the explanation is the
	// visible response. Not a failure.
	OutcomeDeclined Outcome = "declined"

	// OutcomeExecutionFailed: the synthesized SQL did not run. The literal
	// SQL is surfaced alongside the error for transparency.
	OutcomeExecutionFailed Outcome = "execution_failed"

	// OutcomeEmpty: valid SQL, zero rows. Surfaced as a warning, not an
	// error; no ids or bounds are computed.
	OutcomeEmpty Outcome = "empty"

	// OutcomeNonSpatial: rows came back but project neither the identifier
	// nor the geometry column, so there is nothing to highlight.
	OutcomeNonSpatial Outcome = "non_spatial"

	// OutcomeSpatial: rows with mapping-relevant identifiers.
	OutcomeSpatial Outcome = "spatial"
)

// Querier is the dataset contract the pipeline executes against.
type Querier interface {
	Query(ctx context.Context, sqlText string) (*votes.Result, error)
	Bounds(ctx context.Context, sqlText string) (*votes.Bounds, error)
}

// InteractionLogger is the side-channel log contract.
type InteractionLogger interface {
	Append(ctx context.Context, consent bool, rec logstore.Record) error
}

// Config holds the pipeline's collaborators, constructed once at startup.
type Config struct {
	Logger *slog.Logger
	Models *synth.Selector
	Store  Querier

	// QueryLog is optional; nil disables interaction logging entirely.
	QueryLog   InteractionLogger
	LogTimeout time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Models == nil {
		return fmt.Errorf("model selector is required")
	}
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	return nil
}

// Request is one submitted question.
type Request struct {
	Question string
	Model    synth.ModelChoice
	Consent  bool
}

// Interaction is the result of one completed interaction. Query is always
// populated once synthesis succeeds; Result carries rows with the geometry
// column already dropped.
type Interaction struct {
	Outcome           Outcome
	Query             synth.Query
	Result            *votes.Result
	IDs               []int64
	ReferencedColumns []string
	Bounds            *votes.Bounds
}

const defaultLogTimeout = 10 * time.Second

// Pipeline runs interactions. Safe for sequential use within one session;
// the memoized synthesis cache inside the selector is session-private.
type Pipeline struct {
	log        *slog.Logger
	models     *synth.Selector
	store      Querier
	queryLog   InteractionLogger
	logTimeout time.Duration
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logTimeout := cfg.LogTimeout
	if logTimeout == 0 {
		logTimeout = defaultLogTimeout
	}
	return &Pipeline{
		log:        cfg.Logger,
		models:     cfg.Models,
		store:      cfg.Store,
		queryLog:   cfg.QueryLog,
		logTimeout: logTimeout,
	}, nil
}

// Run executes one interaction to completion. Failed interactions return a
// non-nil error alongside an Interaction whose Outcome says which step
// failed; on execution failure the Interaction carries the synthesized query
// so callers can show the literal SQL.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Interaction, error) {
	client, err := p.models.For(req.Model)
	if err != nil {
		return nil, err
	}

	q, err := client.Synthesize(ctx, req.Question)
	if err != nil {
		return &Interaction{Outcome: OutcomeSynthesisFailed}, err
	}

	// Side channel: never blocks, never fails the interaction.
	p.logAsync(req, q)

	if q.Declined() {
		p.log.Info("pipeline: synthesis declined", "question", req.Question)
		return &Interaction{Outcome: OutcomeDeclined, Query: q}, nil
	}

	res, err := p.store.Query(ctx, q.SQL)
	if err != nil {
		p.log.Warn("pipeline: execution failed", "sql", q.SQL, "error", err)
		return &Interaction{Outcome: OutcomeExecutionFailed, Query: q}, err
	}

	interaction := &Interaction{Query: q, Result: res}
	switch Classify(res) {
	case ClassEmpty:
		interaction.Outcome = OutcomeEmpty
		res.DropGeometry()
		p.log.Info("pipeline: query matched no rows", "sql", q.SQL)
		return interaction, nil

	case ClassNonSpatial:
		interaction.Outcome = OutcomeNonSpatial
		p.log.Info("pipeline: non-spatial result", "sql", q.SQL, "rows", res.Count)
		return interaction, nil

	default:
		interaction.Outcome = OutcomeSpatial
		interaction.IDs = IDs(res)
		interaction.ReferencedColumns = ReferencedColumns(q.SQL)

		bounds, err := p.store.Bounds(ctx, q.SQL)
		if err != nil {
			// Missing bounds degrade the map framing, nothing else.
			p.log.Warn("pipeline: bounds extraction failed", "sql", q.SQL, "error", err)
		} else {
			interaction.Bounds = bounds
		}
		res.DropGeometry()

		p.log.Info("pipeline: spatial result", "sql", q.SQL, "rows", res.Count, "ids", len(interaction.IDs))
		return interaction, nil
	}
}

// logAsync appends the interaction record on a detached context so a hung
// log store cannot wedge the session. Errors are reported to the operator
// log only.
func (p *Pipeline) logAsync(req Request, q synth.Query) {
	if p.queryLog == nil {
		return
	}

	rec := logstore.Record{
		Timestamp:   time.Now().UTC(),
		Question:    req.Question,
		SQL:         q.SQL,
		Explanation: q.Explanation,
		Model:       string(req.Model),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.logTimeout)
		defer cancel()
		if err := p.queryLog.Append(ctx, req.Consent, rec); err != nil {
			p.log.Warn("pipeline: query log append failed", "error", err)
		}
	}()
}
