// Package schema is the registry of columns in the LandVote dataset. It is
// the single source of truth for column names and types handed to the query
// synthesizer, so the model can only be told about columns that exist.
package schema

import (
	"fmt"
	"strings"
)

const (
	// TableName is the DuckDB table the dataset is loaded into.
	TableName = "votes"

	// IDColumn uniquely identifies a measure after deduplication.
	IDColumn = "landvote_id"

	// GeometryColumn holds the jurisdiction polygon, when one exists.
	GeometryColumn = "geom"

	// Dialect is the SQL dialect name given to the synthesizer.
	Dialect = "DuckDB"
)

// Sentinel values written during multi-jurisdiction deduplication.
const (
	MultipleCounties = "Multiple Counties"
	MixedParty       = "Mixed"
)

// Measure status values. StatusPassStarred marks measures that passed with a
// supermajority-type caveat.
const (
	StatusPass        = "Pass"
	StatusPassStarred = "Pass*"
	StatusFail        = "Fail"
)

// Jurisdiction levels voting on a measure.
const (
	JurisdictionState    = "State"
	JurisdictionCounty   = "County"
	JurisdictionCity     = "Municipal"
	JurisdictionDistrict = "Special District"
)

// Jurisdictions lists every jurisdiction level, largest first. Map layers are
// stacked in this order.
var Jurisdictions = []string{
	JurisdictionState,
	JurisdictionCounty,
	JurisdictionCity,
	JurisdictionDistrict,
}

// Column describes one column of the votes table.
type Column struct {
	Name        string
	Type        string
	Description string
	Samples     []string
}

// Columns returns the fixed schema of the votes table. The slice is rebuilt
// on each call so callers cannot mutate the registry.
func Columns() []Column {
	return []Column{
		{Name: IDColumn, Type: "BIGINT", Description: "unique measure identifier"},
		{Name: "year", Type: "INTEGER", Description: "election year, 1988 through 2024"},
		{Name: "jurisdiction", Type: "VARCHAR", Description: "governmental level voting on the measure", Samples: Jurisdictions},
		{Name: "state", Type: "VARCHAR", Description: "two-letter state code", Samples: []string{"CA", "NY", "TX"}},
		{Name: "county", Type: "VARCHAR", Description: "county name, or 'Multiple Counties' for multi-county measures"},
		{Name: "status", Type: "VARCHAR", Description: "outcome of the vote", Samples: []string{StatusPass, StatusPassStarred, StatusFail}},
		{Name: "percent_yes", Type: "DOUBLE", Description: "percent voting yes, 0-100"},
		{Name: "percent_no", Type: "DOUBLE", Description: "percent voting no, 0-100"},
		{Name: "conservation_funds_at_stake", Type: "DOUBLE", Description: "dollars proposed by the measure, NULL when unknown"},
		{Name: "conservation_funds_approved", Type: "DOUBLE", Description: "dollars approved by the measure, NULL unless it passed"},
		{Name: "party", Type: "VARCHAR", Description: "majority party of the jurisdiction in the most recent presidential election", Samples: []string{"Democrat", "Republican", MixedParty}},
		{Name: "description", Type: "VARCHAR", Description: "free-text description of the measure"},
		{Name: GeometryColumn, Type: "GEOMETRY", Description: "jurisdiction polygon, NULL when not digitized"},
	}
}

// ColumnNames returns just the column names, in schema order.
func ColumnNames() []string {
	cols := Columns()
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	return names
}

// Describe formats the schema as prompt text for the synthesizer: one table
// header plus one line per column with type, description and sample values.
func Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Table: %s\n", TableName)
	sb.WriteString("Columns:\n")
	for _, c := range Columns() {
		fmt.Fprintf(&sb, "  %s %s -- %s", c.Name, c.Type, c.Description)
		if len(c.Samples) > 0 {
			fmt.Fprintf(&sb, " (values: %s)", strings.Join(c.Samples, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
