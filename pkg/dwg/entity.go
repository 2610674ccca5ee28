// Package dwg models the 2D drawing primitives extracted from CAD plans and
// the layer metadata that routes them through the excavation pipeline.
package dwg

// EntityKind enumerates the drawing primitives the parser understands.
type EntityKind int

const (
	EntityLine     EntityKind = iota // straight segment (wall trace)
	EntityPolyline                   // connected segments, open or closed
	EntityCircle                     // full circle (pile cross-section)
	EntityArc                        // circular arc
)

func (k EntityKind) String() string {
	switch k {
	case EntityLine:
		return "line"
	case EntityPolyline:
		return "polyline"
	case EntityCircle:
		return "circle"
	case EntityArc:
		return "arc"
	default:
		return "unknown"
	}
}

// Point is a 2D drawing coordinate. Drawings are plan views; any Z carried
// by the source file is dropped at import time.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Entity is one drawing primitive together with its provenance.
type Entity struct {
	Handle string     `json:"handle"` // stable ID within the drawing
	Kind   EntityKind `json:"kind"`
	Layer  string     `json:"layer,omitempty"`
	Data   EntityData `json:"data"`
}

// EntityData is the interface for kind-specific entity payloads.
type EntityData interface {
	entityData() // marker method restricting implementations to this package
}
