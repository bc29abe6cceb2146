package mapstyle

import (
	"strconv"

	"github.com/boettiger-lab/landvote/pkg/schema"
)

// Dashboard color palette.
const (
	ColorDarkOrange  = "#ab5601"
	ColorLightOrange = "#f3d3b1"
	ColorGrey        = "#d3d3d3"
	ColorLightGreen  = "#c3dbc3"
	ColorDarkGreen   = "#417d41"
	ColorDemBlue     = "#1b46c2"
	ColorRepRed      = "#E81B23"
)

// Default tile resources consumed by the dashboard.
const (
	VotesTiles     = "https://minio.carlboettiger.info/public-tpl/landvote/landvote_party.pmtiles"
	PartyTiles     = "https://minio.carlboettiger.info/public-election/county/county_political_parties_1988-2024.pmtiles"
	SVITiles       = "https://data.source.coop/cboettig/social-vulnerability/svi2020_us_county.pmtiles"
	Justice40Tiles = "https://data.source.coop/cboettig/justice40/disadvantaged-communities.pmtiles"
)

// statusFillColor colors a jurisdiction by measure outcome: passing measures
// shade darker green as support rises, failing measures shade darker orange
// as support falls.
func statusFillColor() []any {
	return []any{
		"case",
		[]any{"==", []any{"get", "status"}, schema.StatusPass},
		[]any{
			"interpolate", []any{"linear"},
			[]any{"to-number", []any{"slice", []any{"get", "percent_yes"}, 0, -1}},
			50, ColorGrey,
			55, ColorLightGreen,
			100, ColorDarkGreen,
		},
		[]any{"==", []any{"get", "status"}, schema.StatusFail},
		[]any{
			"interpolate", []any{"linear"},
			[]any{"to-number", []any{"slice", []any{"get", "percent_yes"}, 0, -1}},
			0, ColorDarkOrange,
			50, ColorLightOrange,
			67, ColorGrey, // 67 is the highest yes share among failed measures
		},
		ColorGrey,
	}
}

// statusExtrusionPaint extrudes county and city jurisdictions by the log of
// approved funding.
func statusExtrusionPaint() map[string]any {
	return map[string]any{
		"fill-extrusion-color": statusFillColor(),
		"fill-extrusion-height": []any{
			"*",
			[]any{"ln", []any{"+", 1, []any{"to-number", []any{"get", "conservation_funds_approved"}}}},
			1,
		},
	}
}

// partyFillPaint colors jurisdictions by majority party.
func partyFillPaint() map[string]any {
	return map[string]any{
		"fill-color": map[string]any{
			"property": "party",
			"type":     "categorical",
			"stops": []any{
				[]any{"Democrat", ColorDemBlue},
				[]any{"Republican", ColorRepRed},
			},
		},
	}
}

// yearRangeFilter restricts a layer to one jurisdiction level within an
// inclusive year range. Tile attributes store years as strings.
func yearRangeFilter(jurisdiction string, minYear, maxYear int) []any {
	return []any{
		"all",
		[]any{"<=", "year", strconv.Itoa(maxYear)},
		[]any{">=", "year", strconv.Itoa(minYear)},
		[]any{"==", "jurisdiction", jurisdiction},
	}
}

// Status builds the measure-status style for one jurisdiction level. States
// render flat; smaller jurisdictions extrude by approved funding.
func Status(jurisdiction string, minYear, maxYear int) Style {
	paint := statusExtrusionPaint()
	layerType := "fill-extrusion"
	if jurisdiction == schema.JurisdictionState {
		paint = map[string]any{"fill-color": statusFillColor()}
		layerType = "fill"
	}

	return Style{
		Layers: []Layer{
			{
				ID:          jurisdiction,
				Source:      jurisdiction,
				SourceLayer: LayerName(VotesTiles),
				Type:        layerType,
				Filter:      yearRangeFilter(jurisdiction, minYear, maxYear),
				Paint:       paint,
			},
		},
	}
}

// Party builds the political-party style for one jurisdiction level.
func Party(jurisdiction string, minYear, maxYear int) Style {
	return Style{
		Layers: []Layer{
			{
				ID:          jurisdiction,
				Source:      jurisdiction,
				SourceLayer: LayerName(VotesTiles),
				Type:        "fill",
				Filter:      yearRangeFilter(jurisdiction, minYear, maxYear),
				Paint:       partyFillPaint(),
			},
		},
	}
}

// PartyOverlay builds the county presidential-party overlay for the most
// recent election year at or before the given year.
func PartyOverlay(year int) Style {
	electionYear := year - year%4

	return Style{
		Layers: []Layer{
			{
				ID:          "Party",
				Source:      "Political Parties",
				SourceLayer: LayerName(PartyTiles),
				Type:        "fill",
				Filter:      []any{"==", []any{"get", "year"}, strconv.Itoa(electionYear)},
				Paint:       partyFillPaint(),
			},
		},
	}
}

// SVIOverlay builds the CDC Social Vulnerability Index overlay.
func SVIOverlay() Style {
	return Style{
		Layers: []Layer{
			{
				ID:          "SVI",
				Source:      "Social Vulnerability Index",
				SourceLayer: "SVI2020_US_county",
				Type:        "fill",
				Paint: map[string]any{
					"fill-color": []any{
						"interpolate", []any{"linear"}, []any{"get", "RPL_THEMES"},
						0, "#FFE6EE",
						1, "#850101",
					},
				},
			},
		},
	}
}

// Justice40Overlay builds the Climate and Economic Justice overlay. This is
// the one style that carries its own source block.
func Justice40Overlay() Style {
	return Style{
		Version: 8,
		Sources: map[string]any{
			"source1": map[string]any{
				"type":        "vector",
				"url":         "pmtiles://" + Justice40Tiles,
				"attribution": "Justice40",
			},
		},
		Layers: []Layer{
			{
				ID:          "Justice40",
				Source:      "source1",
				SourceLayer: "DisadvantagedCommunitiesCEJST",
				Type:        "fill",
				Paint: map[string]any{
					"fill-color": map[string]any{
						"property": "Disadvan",
						"type":     "categorical",
						"stops": []any{
							[]any{0, "rgba(255, 255, 255, 0)"},
							[]any{1, "rgba(0, 0, 139, 1)"},
						},
					},
					"fill-opacity": 0.6,
				},
			},
		},
	}
}
