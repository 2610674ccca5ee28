package dwg

import "strings"

// LayerKind classifies a drawing layer by naming convention. Structural
// layers drive per-layer extrusion profiles downstream: excavation outlines
// become pit prisms, wall traces become slabs, pile sections become
// cylinders.
type LayerKind int

const (
	LayerGeneric    LayerKind = iota // no recognized prefix
	LayerExcavation                  // EXCA*: excavation outline
	LayerWall                        // WALL*: diaphragm or retaining wall trace
	LayerPile                        // PILE*: pile cross-sections
	LayerAnchor                      // ANCH*: anchors and walers
)

func (k LayerKind) String() string {
	switch k {
	case LayerGeneric:
		return "generic"
	case LayerExcavation:
		return "excavation"
	case LayerWall:
		return "wall"
	case LayerPile:
		return "pile"
	case LayerAnchor:
		return "anchor"
	default:
		return "unknown"
	}
}

// ClassifyLayer maps a layer name to its kind by prefix. Matching is
// case-insensitive; unrecognized names are generic.
func ClassifyLayer(name string) LayerKind {
	upper := strings.ToUpper(strings.TrimSpace(name))
	switch {
	case strings.HasPrefix(upper, "EXCA"):
		return LayerExcavation
	case strings.HasPrefix(upper, "WALL"):
		return LayerWall
	case strings.HasPrefix(upper, "PILE"):
		return LayerPile
	case strings.HasPrefix(upper, "ANCH"):
		return LayerAnchor
	default:
		return LayerGeneric
	}
}

// Layer summarizes the entities found on one drawing layer.
type Layer struct {
	Name        string    `json:"name"`
	Kind        LayerKind `json:"kind"`
	EntityCount int       `json:"entity_count"`
	Frozen      bool      `json:"frozen,omitempty"` // from the source file's layer table, if any
	Locked      bool      `json:"locked,omitempty"`
}
