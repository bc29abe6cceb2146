package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boettiger-lab/landvote/pkg/votes"
)

func resultWith(cols []string, rows []map[string]any) *votes.Result {
	return &votes.Result{Columns: cols, Rows: rows, Count: len(rows)}
}

func TestPipeline_Classify(t *testing.T) {
	t.Parallel()

	t.Run("zero rows is always empty regardless of columns", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, ClassEmpty, Classify(resultWith([]string{"landvote_id", "geom"}, nil)))
		require.Equal(t, ClassEmpty, Classify(resultWith([]string{"year"}, nil)))
		require.Equal(t, ClassEmpty, Classify(resultWith(nil, nil)))
	})

	t.Run("rows without identifier or geometry are non-spatial", func(t *testing.T) {
		t.Parallel()

		res := resultWith([]string{"year", "total"}, []map[string]any{{"year": 2020, "total": 3}})
		require.Equal(t, ClassNonSpatial, Classify(res))
	})

	t.Run("identifier column alone makes a result spatial", func(t *testing.T) {
		t.Parallel()

		res := resultWith([]string{"landvote_id"}, []map[string]any{{"landvote_id": int64(1)}})
		require.Equal(t, ClassSpatial, Classify(res))
	})

	t.Run("geometry column alone makes a result spatial", func(t *testing.T) {
		t.Parallel()

		res := resultWith([]string{"geom"}, []map[string]any{{"geom": "POLYGON(...)"}})
		require.Equal(t, ClassSpatial, Classify(res))
	})
}

func TestPipeline_ReferencedColumns(t *testing.T) {
	t.Parallel()

	t.Run("first-seen order, deduplicated", func(t *testing.T) {
		t.Parallel()

		sql := `SELECT "year", "status", "year" FROM votes WHERE "status" = 'Fail' AND "percent_yes" > 45`
		require.Equal(t, []string{"year", "status", "percent_yes"}, ReferencedColumns(sql))
	})

	t.Run("unquoted references are not reported", func(t *testing.T) {
		t.Parallel()

		// Heuristic, not a parser: unquoted columns are invisible to it.
		require.Empty(t, ReferencedColumns("SELECT year FROM votes"))
	})

	t.Run("no quotes yields nil", func(t *testing.T) {
		t.Parallel()

		require.Nil(t, ReferencedColumns(""))
	})
}

func TestPipeline_IDs(t *testing.T) {
	t.Parallel()

	t.Run("duplicates collapse and order is stable", func(t *testing.T) {
		t.Parallel()

		res := resultWith([]string{"landvote_id"}, []map[string]any{
			{"landvote_id": int64(7)},
			{"landvote_id": int32(3)},
			{"landvote_id": int64(7)},
			{"landvote_id": float64(12)},
		})
		require.Equal(t, []int64{3, 7, 12}, IDs(res))
	})

	t.Run("idempotent under repeated extraction", func(t *testing.T) {
		t.Parallel()

		res := resultWith([]string{"landvote_id"}, []map[string]any{
			{"landvote_id": int64(5)},
			{"landvote_id": int64(5)},
		})
		require.Equal(t, IDs(res), IDs(res))
		require.Equal(t, []int64{5}, IDs(res))
	})

	t.Run("missing identifier column yields nil", func(t *testing.T) {
		t.Parallel()

		res := resultWith([]string{"year"}, []map[string]any{{"year": 2020}})
		require.Nil(t, IDs(res))
	})

	t.Run("null identifiers are skipped", func(t *testing.T) {
		t.Parallel()

		res := resultWith([]string{"landvote_id"}, []map[string]any{
			{"landvote_id": nil},
			{"landvote_id": int64(2)},
		})
		require.Equal(t, []int64{2}, IDs(res))
	})
}
