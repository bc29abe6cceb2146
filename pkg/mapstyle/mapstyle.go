// Package mapstyle builds MapLibre style documents for the PMTiles layers
// shown on the dashboard map. Everything here is a pure function of its
// inputs; styles are plain structs that marshal to MapLibre JSON.
package mapstyle

import (
	"path"
	"strings"

	"github.com/boettiger-lab/landvote/pkg/schema"
)

// Layer is one MapLibre style layer.
type Layer struct {
	ID          string         `json:"id"`
	Source      string         `json:"source"`
	SourceLayer string         `json:"source-layer"`
	Type        string         `json:"type"`
	Filter      []any          `json:"filter,omitempty"`
	Paint       map[string]any `json:"paint"`
}

// Style is a MapLibre style fragment applied to one PMTiles source.
type Style struct {
	Version int            `json:"version,omitempty"`
	Sources map[string]any `json:"sources,omitempty"`
	Layers  []Layer        `json:"layers"`
}

// TileSource references a remote tiled-vector resource. Contents are never
// parsed; the resource is only a style target.
type TileSource struct {
	Name string // source name registered with the map
	URL  string // pmtiles resource URL
}

// LayerName derives a source-layer name from a tile resource's file name:
// the base name without its extension, with every non-alphanumeric rune
// stripped. The derivation is idempotent.
func LayerName(resource string) string {
	base := path.Base(resource)
	base = strings.TrimSuffix(base, path.Ext(base))

	var sb strings.Builder
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Highlight builds a single-layer style selecting only the rows whose
// identifier is a member of ids, colored per paint. An empty id set is
// valid and produces a style that matches nothing.
func Highlight(ids []int64, paint map[string]any, source TileSource) Style {
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		members = append(members, id)
	}

	return Style{
		Layers: []Layer{
			{
				ID:          "Highlight",
				Source:      source.Name,
				SourceLayer: LayerName(source.URL),
				Type:        "fill",
				Filter:      []any{"in", []any{"get", schema.IDColumn}, []any{"literal", members}},
				Paint:       paint,
			},
		},
	}
}

// HighlightPaint is the default paint for query highlights.
func HighlightPaint() map[string]any {
	return map[string]any{
		"fill-color":         "#ffd700",
		"fill-opacity":       0.75,
		"fill-outline-color": "#000000",
	}
}
