package synth

import (
	"fmt"

	"github.com/boettiger-lab/landvote/pkg/schema"
)

// promptTemplate is the fixed instruction block. The dialect name and schema
// description are appended by systemPrompt.
const promptTemplate = `You translate questions about conservation ballot measures into SQL.

Rules:
- Produce a single read-only SELECT statement. Never write, alter or drop.
- Reference only the table and columns listed in the schema below, and
  double-quote every column name you reference.
- When the matched measures could be shown on a map, include the
  "landvote_id" and "geom" columns in the projection.
- Status 'Pass*' means passed with a supermajority-type caveat; questions
  about passing measures include both 'Pass' and 'Pass*'.
- If the question cannot be answered from this dataset, return an empty
  sql_query and use the explanation to say why.

Examples:

Question: Which county measures failed narrowly, between 45% and 50% yes?
sql_query: SELECT "landvote_id", "year", "county", "state", "percent_yes", "geom" FROM votes WHERE "status" = 'Fail' AND "percent_yes" BETWEEN 45 AND 50 AND "jurisdiction" = 'County'
explanation: Failed county measures with a yes share between 45 and 50 percent.

Question: How much funding was approved per year since 2010?
sql_query: SELECT "year", sum("conservation_funds_approved") AS total FROM votes WHERE "year" >= 2010 GROUP BY "year" ORDER BY "year"
explanation: Total approved conservation funds per year from 2010 on.

Question: What is the weather today?
sql_query:
explanation: This dataset covers conservation ballot measures, not weather.`

// systemPrompt builds the full system prompt from the fixed template, the
// dialect name and the schema registry.
func systemPrompt() string {
	return fmt.Sprintf("%s\n\nSQL dialect: %s\n\n%s", promptTemplate, schema.Dialect, schema.Describe())
}

// userPrompt frames the untrusted question for the model.
func userPrompt(question string) string {
	return fmt.Sprintf("Question: %s", question)
}
