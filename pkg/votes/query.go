package votes

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/boettiger-lab/landvote/pkg/schema"
)

// ExecError reports a statement that DuckDB rejected or failed to run. The
// literal SQL is carried so callers can show it alongside the error.
type ExecError struct {
	SQL string
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Result is one materialized query result. Rows are fully loaded; there is
// no pagination.
type Result struct {
	SQL     string
	Columns []string
	Rows    []map[string]any
	Count   int
}

// IsEmpty reports whether the query matched no rows.
func (r *Result) IsEmpty() bool {
	return r.Count == 0
}

// HasColumn reports whether the result set includes the named column.
func (r *Result) HasColumn(name string) bool {
	return slices.Contains(r.Columns, name)
}

// DropGeometry removes the geometry column from the result in place. The
// raw polygon bytes are not human-readable and are not needed once ids and
// bounds have been extracted.
func (r *Result) DropGeometry() {
	idx := slices.Index(r.Columns, schema.GeometryColumn)
	if idx < 0 {
		return
	}
	r.Columns = slices.Delete(r.Columns, idx, idx+1)
	for _, row := range r.Rows {
		delete(row, schema.GeometryColumn)
	}
}

// Query runs a synthesized statement and materializes the full result set.
// Duplicate rows are collapsed by wrapping the statement in SELECT DISTINCT.
// SQL-level failures come back as *ExecError.
func (s *Store) Query(ctx context.Context, sqlText string) (*Result, error) {
	sqlText = strings.TrimSuffix(strings.TrimSpace(sqlText), ";")
	if sqlText == "" {
		return nil, fmt.Errorf("empty SQL statement")
	}

	wrapped := fmt.Sprintf("SELECT DISTINCT * FROM (%s)", sqlText)
	rows, err := s.db.QueryContext(ctx, wrapped)
	if err != nil {
		return nil, &ExecError{SQL: sqlText, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &ExecError{SQL: sqlText, Err: err}
	}

	res := &Result{SQL: sqlText, Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &ExecError{SQL: sqlText, Err: err}
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecError{SQL: sqlText, Err: err}
	}

	res.Count = len(res.Rows)
	return res, nil
}

// Bounds is the minimal rectangle enclosing a set of geometries, in
// longitude/latitude.
type Bounds struct {
	MinLon float64 `json:"minLon"`
	MinLat float64 `json:"minLat"`
	MaxLon float64 `json:"maxLon"`
	MaxLat float64 `json:"maxLat"`
}

// Bounds computes the bounding box spanning all non-null geometries matched
// by the statement. A nil box means no bounds are available: the statement
// does not project a geometry column, or every matched geometry is NULL.
// Callers must not treat nil as a zeroed box.
func (s *Store) Bounds(ctx context.Context, sqlText string) (*Bounds, error) {
	sqlText = strings.TrimSuffix(strings.TrimSpace(sqlText), ";")
	if sqlText == "" {
		return nil, fmt.Errorf("empty SQL statement")
	}

	stmt := fmt.Sprintf(`
		WITH q AS (%s)
		SELECT
			min(ST_XMin(%[2]s)), min(ST_YMin(%[2]s)),
			max(ST_XMax(%[2]s)), max(ST_YMax(%[2]s))
		FROM q
		WHERE %[2]s IS NOT NULL
	`, sqlText, schema.GeometryColumn)

	var minLon, minLat, maxLon, maxLat sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, stmt).Scan(&minLon, &minLat, &maxLon, &maxLat); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// A statement with no geometry column fails to bind the CTE
		// aggregate; that is the "no bounds available" case, not an error.
		if strings.Contains(err.Error(), "Binder Error") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to compute bounds: %w", err)
	}
	if !minLon.Valid || !minLat.Valid || !maxLon.Valid || !maxLat.Valid {
		return nil, nil
	}

	return &Bounds{
		MinLon: minLon.Float64,
		MinLat: minLat.Float64,
		MaxLon: maxLon.Float64,
		MaxLat: maxLat.Float64,
	}, nil
}
