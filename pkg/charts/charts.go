// Package charts computes the aggregate series behind the dashboard's
// summary charts from the loaded votes table.
package charts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/boettiger-lab/landvote/pkg/schema"
)

// PartyYear is the fraction of measures passing in one year for one party.
type PartyYear struct {
	Year         int     `json:"year"`
	Party        string  `json:"party"`
	PassFraction float64 `json:"passFraction"`
}

// FundingYear is the approved conservation funding for one year plus the
// running total, in billions of dollars.
type FundingYear struct {
	Year               int     `json:"year"`
	Total              float64 `json:"total"`
	CumulativeBillions float64 `json:"cumulativeBillions"`
}

// DB is the handle the chart queries run against.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Service binds the chart queries to one database handle.
type Service struct {
	db DB
}

func NewService(db DB) *Service {
	return &Service{db: db}
}

func (s *Service) PartyPassRate(ctx context.Context) ([]PartyYear, error) {
	return PartyPassRate(ctx, s.db)
}

func (s *Service) CumulativeFunding(ctx context.Context) ([]FundingYear, error) {
	return CumulativeFunding(ctx, s.db)
}

// PartyPassRate returns the pass fraction per year per party, Democrat and
// Republican jurisdictions only, ordered by year.
func PartyPassRate(ctx context.Context, db DB) ([]PartyYear, error) {
	stmt := fmt.Sprintf(`
		SELECT
			year,
			party,
			avg(CASE WHEN status IN ('%s', '%s') THEN 1.0 ELSE 0.0 END) AS pass_fraction
		FROM %s
		WHERE party IN ('Democrat', 'Republican')
		GROUP BY year, party
		ORDER BY year, party
	`, schema.StatusPass, schema.StatusPassStarred, schema.TableName)

	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to compute party pass rate: %w", err)
	}
	defer rows.Close()

	var series []PartyYear
	for rows.Next() {
		var p PartyYear
		if err := rows.Scan(&p.Year, &p.Party, &p.PassFraction); err != nil {
			return nil, fmt.Errorf("failed to scan party pass rate row: %w", err)
		}
		series = append(series, p)
	}
	return series, rows.Err()
}

// CumulativeFunding returns approved funds of passing measures summed per
// year with a running total, ordered by year.
func CumulativeFunding(ctx context.Context, db DB) ([]FundingYear, error) {
	stmt := fmt.Sprintf(`
		WITH yearly AS (
			SELECT year, sum(conservation_funds_approved) AS total
			FROM %s
			WHERE status IN ('%s', '%s')
			GROUP BY year
		)
		SELECT
			year,
			coalesce(total, 0),
			sum(coalesce(total, 0)) OVER (ORDER BY year) / 1e9 AS cumulative
		FROM yearly
		ORDER BY year
	`, schema.TableName, schema.StatusPass, schema.StatusPassStarred)

	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to compute cumulative funding: %w", err)
	}
	defer rows.Close()

	var series []FundingYear
	for rows.Next() {
		var f FundingYear
		if err := rows.Scan(&f.Year, &f.Total, &f.CumulativeBillions); err != nil {
			return nil, fmt.Errorf("failed to scan funding row: %w", err)
		}
		series = append(series, f)
	}
	return series, rows.Err()
}
