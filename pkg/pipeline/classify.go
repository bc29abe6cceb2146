package pipeline

import (
	"regexp"
	"slices"

	"github.com/boettiger-lab/landvote/pkg/schema"
	"github.com/boettiger-lab/landvote/pkg/votes"
)

// Class is the classification of an executed result. Every result maps to
// exactly one class, and the classification is made once and never
// re-derived downstream.
type Class string

const (
	ClassEmpty      Class = "empty"
	ClassNonSpatial Class = "non_spatial"
	ClassSpatial    Class = "spatial"
)

// Classify assigns a result its class. Zero rows is always empty regardless
// of the column set; otherwise a result is spatial when it projects either
// the identifier column or the geometry column.
func Classify(res *votes.Result) Class {
	if res.IsEmpty() {
		return ClassEmpty
	}
	if !res.HasColumn(schema.IDColumn) && !res.HasColumn(schema.GeometryColumn) {
		return ClassNonSpatial
	}
	return ClassSpatial
}

var quotedIdentRe = regexp.MustCompile(`"([^"]+)"`)

// ReferencedColumns scans the raw SQL text for double-quoted substrings,
// preserving first-seen order and dropping duplicates. This is a best-effort
// heuristic for surfacing which fields a query used, not a SQL parser: it
// over- and under-reports columns referenced without quoting or through
// expressions, and that behavior is relied upon by the UI.
func ReferencedColumns(sqlText string) []string {
	var cols []string
	for _, m := range quotedIdentRe.FindAllStringSubmatch(sqlText, -1) {
		if !slices.Contains(cols, m[1]) {
			cols = append(cols, m[1])
		}
	}
	return cols
}

// IDs returns the distinct identifier values across all result rows, sorted.
// Order is irrelevant to callers; uniqueness is enforced by construction.
func IDs(res *votes.Result) []int64 {
	if !res.HasColumn(schema.IDColumn) {
		return nil
	}
	seen := make(map[int64]bool)
	var ids []int64
	for _, row := range res.Rows {
		id, ok := asInt64(row[schema.IDColumn])
		if !ok {
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// asInt64 coerces the scanned identifier value. DuckDB hands back different
// integer widths depending on the projection.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
