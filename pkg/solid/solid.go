// Package solid combines soil and excavation meshes into a single model
// with metrics and provenance. The default composition is the documented
// mesh-level approximation of the boolean operations; exact results go
// through an ExactComposer backend.
package solid

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/geomech/stratum/pkg/mesh"
	"github.com/geomech/stratum/pkg/quality"
)

// Operation names a boolean combination of soil and excavation volumes.
type Operation string

const (
	OpUnion        Operation = "union"
	OpDifference   Operation = "difference"
	OpIntersection Operation = "intersection"
)

// Valid reports whether the operation is one of the supported three.
func (op Operation) Valid() bool {
	switch op {
	case OpUnion, OpDifference, OpIntersection:
		return true
	}
	return false
}

// UnsupportedOperationError reports a boolean operation outside the
// supported set.
type UnsupportedOperationError struct {
	Op Operation
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported boolean operation %q", e.Op)
}

// Provenance records how a model was produced.
type Provenance struct {
	RunID uuid.UUID `json:"run_id"`
	Op    Operation `json:"op"`
	Note  string    `json:"note,omitempty"`
	At    time.Time `json:"at"`
}

// Metrics summarizes a model's mesh.
type Metrics struct {
	VertexCount   int      `json:"vertex_count"`
	TriangleCount int      `json:"triangle_count"`
	Bounds        mesh.Box `json:"bounds"`
	Volume        float64  `json:"volume"`
	SurfaceArea   float64  `json:"surface_area"`
}

// Model is a composed solid ready for hand-off to meshing or rendering.
type Model struct {
	Mesh       mesh.Mesh  `json:"mesh"`
	Metrics    Metrics    `json:"metrics"`
	Provenance Provenance `json:"provenance"`
}

// FromMesh wraps a mesh into a model, computing metrics and stamping fresh
// provenance.
func FromMesh(m mesh.Mesh, op Operation) Model {
	return Model{
		Mesh:    m,
		Metrics: measure(m),
		Provenance: Provenance{
			RunID: uuid.New(),
			Op:    op,
			At:    time.Now().UTC(),
		},
	}
}

func measure(m mesh.Mesh) Metrics {
	return Metrics{
		VertexCount:   m.VertexCount(),
		TriangleCount: m.TriangleCount(),
		Bounds:        m.Bounds(),
		Volume:        quality.Volume(m),
		SurfaceArea:   quality.SurfaceArea(m),
	}
}

// ---------------------------------------------------------------------------
// Approximate composition
// ---------------------------------------------------------------------------

// Compose combines the soil and excavation meshes under the given operation
// using the mesh-level approximation: difference keeps the soil mesh
// untouched, union concatenates both meshes, intersection keeps the
// excavation mesh. The inputs are never modified. The provenance note names
// the approximation so downstream consumers can tell it from an exact
// boolean.
func Compose(soil, excavation mesh.Mesh, op Operation) (Model, error) {
	var (
		out  mesh.Mesh
		note string
	)

	switch op {
	case OpDifference:
		out = soil.Clone()
		note = "approximate difference: soil mesh kept, excavation not carved"
	case OpUnion:
		out = mesh.Merge(soil, excavation)
		note = "approximate union: mesh concatenation"
	case OpIntersection:
		out = excavation.Clone()
		note = "approximate intersection: excavation mesh kept"
	default:
		return Model{}, &UnsupportedOperationError{Op: op}
	}

	model := FromMesh(out, op)
	model.Provenance.Note = note
	return model, nil
}
