package votes

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boettiger-lab/landvote/pkg/schema"
)

// writeDatasetParquet writes raw (pre-deduplication) rows to a parquet file,
// including a measure that spans two counties with disagreeing parties.
func writeDatasetParquet(t *testing.T) string {
	t.Helper()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	s, err := openEmpty(t.Context(), log, "")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.ExecContext(t.Context(), `
		CREATE TABLE raw AS
		SELECT * FROM (VALUES
			(42, 2004, 'County', 'CA', 'Alpha', 'Pass', 58.0, 42.0, 1000000.0, 1000000.0, 'Democrat', 'watershed bond', ST_GeomFromText('POLYGON((-122 37, -121 37, -121 38, -122 38, -122 37))')),
			(42, 2004, 'County', 'CA', 'Beta', 'Pass', 58.0, 42.0, 1000000.0, 1000000.0, 'Republican', 'watershed bond', ST_GeomFromText('POLYGON((-121 37, -120 37, -120 38, -121 38, -121 37))')),
			(7, 2010, 'State', 'OR', NULL, 'Fail', 44.0, 56.0, NULL, NULL, 'Democrat', 'habitat levy', NULL)
		) AS t(landvote_id, year, jurisdiction, state, county, status, percent_yes, percent_no,
			conservation_funds_at_stake, conservation_funds_approved, party, description, geom)
	`)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "landvote.parquet")
	_, err = s.db.ExecContext(t.Context(), "COPY raw TO '"+path+"' (FORMAT PARQUET)")
	require.NoError(t, err)
	return path
}

func TestVotes_Open_DeduplicatesMultiJurisdictionMeasures(t *testing.T) {
	t.Parallel()

	path := writeDatasetParquet(t)
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	s, err := Open(t.Context(), Config{Logger: log, DatasetURL: path})
	require.NoError(t, err)
	defer s.Close()

	res, err := s.Query(t.Context(), "SELECT CAST(landvote_id AS BIGINT) AS landvote_id, county, party FROM votes")
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)

	// The two county rows for measure 42 collapse to one, with sentinel
	// county and party values where the members disagree.
	var collapsed map[string]any
	for _, row := range res.Rows {
		if id, ok := row["landvote_id"].(int64); ok && id == 42 {
			collapsed = row
		}
	}
	require.NotNil(t, collapsed)
	require.Equal(t, schema.MultipleCounties, collapsed["county"])
	require.Equal(t, schema.MixedParty, collapsed["party"])

	// Collapsed geometry is the union of the member polygons.
	b, err := s.Bounds(t.Context(), "SELECT * FROM votes WHERE landvote_id = 42")
	require.NoError(t, err)
	require.NotNil(t, b)
	require.InDelta(t, -122, b.MinLon, 1e-9)
	require.InDelta(t, -120, b.MaxLon, 1e-9)
}

func TestVotes_Open_ValidatesConfig(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	_, err := Open(t.Context(), Config{Logger: log})
	require.Error(t, err)

	_, err = Open(t.Context(), Config{DatasetURL: "x.parquet"})
	require.Error(t, err)
}
