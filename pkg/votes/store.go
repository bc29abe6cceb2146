// Package votes owns the LandVote dataset for one session: it loads the
// parquet source into a local DuckDB table, collapses multi-jurisdiction
// measures to one row each, and executes synthesized SQL against the result.
package votes

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/boettiger-lab/landvote/pkg/schema"
)

// Config holds configuration for opening a Store.
type Config struct {
	Logger *slog.Logger

	// Path is the DuckDB database file. Empty means in-memory.
	Path string

	// DatasetURL is the parquet file holding the raw LandVote rows. Both
	// https:// URLs and local paths work; remote reads go through the
	// httpfs extension.
	DatasetURL string
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.DatasetURL == "" {
		return fmt.Errorf("dataset URL is required")
	}
	return nil
}

// Store is a session-private handle on the loaded dataset. The dataset is
// read-only after load; the only writes are the one-time CREATE TABLE.
type Store struct {
	log *slog.Logger
	db  *sql.DB
}

// Open opens DuckDB, loads the spatial and httpfs extensions, and ingests
// the dataset. The returned Store is ready for queries.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s, err := openEmpty(ctx, cfg.Logger, cfg.Path)
	if err != nil {
		return nil, err
	}

	if err := s.loadDataset(ctx, cfg.DatasetURL); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func openEmpty(ctx context.Context, log *slog.Logger, path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, ext := range []string{"spatial", "httpfs"} {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("INSTALL '%s'", ext)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to install %s extension: %w", ext, err)
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf("LOAD '%s'", ext)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to load %s extension: %w", ext, err)
		}
	}

	return &Store{log: log, db: db}, nil
}

// loadDataset materializes the votes table from the parquet source. Raw rows
// share a landvote_id when a measure spans jurisdictions; those collapse to
// a single row with sentinel county/party values where the members disagree
// and the union of the member polygons as geometry.
func (s *Store) loadDataset(ctx context.Context, datasetURL string) error {
	s.log.Info("votes: loading dataset", "url", datasetURL)

	stmt := fmt.Sprintf(`
		CREATE OR REPLACE TABLE %s AS
		SELECT
			landvote_id,
			min(year) AS year,
			min(jurisdiction) AS jurisdiction,
			min(state) AS state,
			CASE WHEN count(DISTINCT county) > 1 THEN '%s' ELSE min(county) END AS county,
			min(status) AS status,
			min(percent_yes) AS percent_yes,
			min(percent_no) AS percent_no,
			min(conservation_funds_at_stake) AS conservation_funds_at_stake,
			min(conservation_funds_approved) AS conservation_funds_approved,
			CASE WHEN count(DISTINCT party) > 1 THEN '%s' ELSE min(party) END AS party,
			min(description) AS description,
			ST_Union_Agg(%s) AS %s
		FROM read_parquet(?)
		GROUP BY landvote_id
	`, schema.TableName, schema.MultipleCounties, schema.MixedParty, schema.GeometryColumn, schema.GeometryColumn)

	if _, err := s.db.ExecContext(ctx, stmt, datasetURL); err != nil {
		return fmt.Errorf("failed to load dataset from %s: %w", datasetURL, err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", schema.TableName)).Scan(&count); err != nil {
		return fmt.Errorf("failed to count loaded rows: %w", err)
	}
	s.log.Info("votes: dataset loaded", "measures", count)
	return nil
}

// PassRate returns the count of passing measures and the total measure count
// within the inclusive year range.
func (s *Store) PassRate(ctx context.Context, minYear, maxYear int) (passed, total int, err error) {
	stmt := fmt.Sprintf(`
		SELECT
			count(*) FILTER (WHERE status IN ('%s', '%s')),
			count(*)
		FROM %s
		WHERE year >= ? AND year <= ?
	`, schema.StatusPass, schema.StatusPassStarred, schema.TableName)

	if err := s.db.QueryRowContext(ctx, stmt, minYear, maxYear).Scan(&passed, &total); err != nil {
		return 0, 0, fmt.Errorf("failed to compute pass rate: %w", err)
	}
	return passed, total, nil
}

// DB exposes the underlying handle for packages that run their own
// aggregates over the votes table.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}
