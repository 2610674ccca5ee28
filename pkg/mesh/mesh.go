// Package mesh provides the flat triangle-buffer type shared by the
// excavation pipeline and its renderer-facing output. All arrays are flat:
// vertices has 3 floats per vertex (x,y,z), normals has 3 floats per vertex,
// faces has 3 uint32s per triangle.
package mesh

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is a triangle mesh in the layout consumed by renderers and by the
// exact-boolean service boundary.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Faces    []uint32  `json:"faces"`    // [i0,i1,i2, ...] triangles
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...] per vertex
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Faces) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() Mesh {
	out := Mesh{
		Vertices: make([]float32, len(m.Vertices)),
		Faces:    make([]uint32, len(m.Faces)),
		Normals:  make([]float32, len(m.Normals)),
	}
	copy(out.Vertices, m.Vertices)
	copy(out.Faces, m.Faces)
	copy(out.Normals, m.Normals)
	return out
}

// Vertex returns vertex i as a vector.
func (m *Mesh) Vertex(i int) r3.Vec {
	return r3.Vec{
		X: float64(m.Vertices[3*i]),
		Y: float64(m.Vertices[3*i+1]),
		Z: float64(m.Vertices[3*i+2]),
	}
}

// Triangle returns the three corner positions of triangle t.
func (m *Mesh) Triangle(t int) [3]r3.Vec {
	return [3]r3.Vec{
		m.Vertex(int(m.Faces[3*t])),
		m.Vertex(int(m.Faces[3*t+1])),
		m.Vertex(int(m.Faces[3*t+2])),
	}
}

// Bounds returns the axis-aligned bounding box of all vertices.
// An empty mesh yields the empty box.
func (m *Mesh) Bounds() Box {
	b := EmptyBox()
	for i := 0; i < m.VertexCount(); i++ {
		b = b.Extend(m.Vertex(i))
	}
	return b
}

// RecomputeNormals rebuilds per-vertex normals by accumulating the face
// normal of every incident triangle and normalizing the sum. Vertices shared
// between faces receive averaged normals; degenerate faces contribute nothing.
func (m *Mesh) RecomputeNormals() {
	acc := make([]r3.Vec, m.VertexCount())
	for t := 0; t < m.TriangleCount(); t++ {
		i0 := m.Faces[3*t]
		i1 := m.Faces[3*t+1]
		i2 := m.Faces[3*t+2]
		v0 := m.Vertex(int(i0))
		v1 := m.Vertex(int(i1))
		v2 := m.Vertex(int(i2))
		n := r3.Cross(r3.Sub(v1, v0), r3.Sub(v2, v0))
		acc[i0] = r3.Add(acc[i0], n)
		acc[i1] = r3.Add(acc[i1], n)
		acc[i2] = r3.Add(acc[i2], n)
	}

	m.Normals = make([]float32, len(m.Vertices))
	for i, n := range acc {
		l := r3.Norm(n)
		if l < 1e-12 {
			// Isolated or fully degenerate vertex. Point it up so the
			// buffer stays renderable.
			m.Normals[3*i+2] = 1
			continue
		}
		m.Normals[3*i] = float32(n.X / l)
		m.Normals[3*i+1] = float32(n.Y / l)
		m.Normals[3*i+2] = float32(n.Z / l)
	}
}

// Translate shifts every vertex by (dx, dy, dz). Normals are unaffected.
func (m *Mesh) Translate(dx, dy, dz float64) {
	for i := 0; i < m.VertexCount(); i++ {
		m.Vertices[3*i] += float32(dx)
		m.Vertices[3*i+1] += float32(dy)
		m.Vertices[3*i+2] += float32(dz)
	}
}

// RescaleZ affinely remaps the mesh's z range onto [lo, hi]. A mesh with no
// z extent is translated to lo. Normals are left untouched; callers that
// need exact normals after a non-uniform scale should recompute them.
func (m *Mesh) RescaleZ(lo, hi float64) {
	if m.IsEmpty() {
		return
	}
	b := m.Bounds()
	span := b.Max.Z - b.Min.Z
	if span < 1e-12 {
		m.Translate(0, 0, lo-b.Min.Z)
		return
	}
	scale := (hi - lo) / span
	for i := 0; i < m.VertexCount(); i++ {
		z := float64(m.Vertices[3*i+2])
		m.Vertices[3*i+2] = float32(lo + (z-b.Min.Z)*scale)
	}
}
