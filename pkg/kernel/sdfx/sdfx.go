// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library.
package sdfx

import (
	"fmt"
	"math"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/geomech/stratum/pkg/kernel"
	"github.com/geomech/stratum/pkg/mesh"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

// defaultMeshCells controls marching cubes tessellation resolution.
const defaultMeshCells = 200

// sdfxSolid wraps an sdf.SDF3 to implement kernel.Solid.
type sdfxSolid struct {
	s sdf.SDF3
}

// BoundingBox returns the axis-aligned bounding box.
func (s *sdfxSolid) BoundingBox() (min, max [3]float64) {
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct {
	meshCells int
}

// New returns a new SdfxKernel at the default mesh resolution.
func New() *SdfxKernel {
	return &SdfxKernel{meshCells: defaultMeshCells}
}

// NewWithResolution returns an SdfxKernel whose marching cubes pass uses
// the given cell count along the longest bounding box axis.
func NewWithResolution(cells int) *SdfxKernel {
	if cells < 1 {
		cells = defaultMeshCells
	}
	return &SdfxKernel{meshCells: cells}
}

// unwrap extracts the underlying sdf.SDF3 from a kernel.Solid.
func unwrap(s kernel.Solid) sdf.SDF3 {
	return s.(*sdfxSolid).s
}

// wrap creates a kernel.Solid from an sdf.SDF3.
func wrap(s sdf.SDF3) kernel.Solid {
	return &sdfxSolid{s: s}
}

// Slab creates a rectangular solid with the given dimensions. The result
// has its minimum corner at the origin so that depth translations in the
// excavation model line up with drawing coordinates. sdf.Box3D centers the
// box at the origin, so we translate by half-dimensions.
func (k *SdfxKernel) Slab(x, y, z float64) kernel.Solid {
	s, err := sdf.Box3D(v3.Vec{X: x, Y: y, Z: z}, 0)
	if err != nil {
		panic(fmt.Sprintf("sdfx.Box3D: %v", err))
	}
	// Shift from center-origin to min-corner-origin.
	m := sdf.Translate3d(v3.Vec{X: x / 2, Y: y / 2, Z: z / 2})
	return wrap(sdf.Transform3D(s, m))
}

// Prism extrudes a polygon outline from z=0 to z=height. The outline is
// normalized to counterclockwise winding before the profile is built.
func (k *SdfxKernel) Prism(outline [][2]float64, height float64) (kernel.Solid, error) {
	if len(outline) < 3 {
		return nil, fmt.Errorf("prism outline needs at least 3 points, got %d", len(outline))
	}
	if height <= 0 {
		return nil, fmt.Errorf("prism height must be positive, got %g", height)
	}

	pts := make([]v2.Vec, len(outline))
	for i, p := range outline {
		pts[i] = v2.Vec{X: p[0], Y: p[1]}
	}
	if polygonArea(outline) < 0 {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}

	profile, err := sdf.Polygon2D(pts)
	if err != nil {
		return nil, fmt.Errorf("sdfx.Polygon2D: %w", err)
	}

	// Extrude3D spans [-height/2, height/2]; shift the base onto z=0.
	s := sdf.Extrude3D(profile, height)
	m := sdf.Translate3d(v3.Vec{X: 0, Y: 0, Z: height / 2})
	return wrap(sdf.Transform3D(s, m)), nil
}

// Cylinder creates a cylinder with the given height and radius, axis on z,
// base at z=0. The segments parameter is ignored since SDF represents
// smooth surfaces.
func (k *SdfxKernel) Cylinder(height, radius float64, segments int) kernel.Solid {
	s, err := sdf.Cylinder3D(height, radius, 0)
	if err != nil {
		panic(fmt.Sprintf("sdfx.Cylinder3D: %v", err))
	}
	// Cylinder3D is centered on the origin; shift the base onto z=0.
	m := sdf.Translate3d(v3.Vec{X: 0, Y: 0, Z: height / 2})
	return wrap(sdf.Transform3D(s, m))
}

// Union returns the union of two solids.
func (k *SdfxKernel) Union(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Union3D(unwrap(a), unwrap(b)))
}

// Difference returns the difference a - b.
func (k *SdfxKernel) Difference(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Difference3D(unwrap(a), unwrap(b)))
}

// Intersection returns the intersection of two solids.
func (k *SdfxKernel) Intersection(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Intersect3D(unwrap(a), unwrap(b)))
}

// Translate moves a solid by (x, y, z).
func (k *SdfxKernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	m := sdf.Translate3d(v3.Vec{X: x, Y: y, Z: z})
	return wrap(sdf.Transform3D(unwrap(s), m))
}

// RotateZ rotates a solid around the z axis by the given angle in degrees.
func (k *SdfxKernel) RotateZ(s kernel.Solid, degrees float64) kernel.Solid {
	m := sdf.RotateZ(degrees * math.Pi / 180.0)
	return wrap(sdf.Transform3D(unwrap(s), m))
}

// ToMesh converts a solid to a triangle mesh using marching cubes.
func (k *SdfxKernel) ToMesh(s kernel.Solid) (*mesh.Mesh, error) {
	sdf3 := unwrap(s)

	renderer := render.NewMarchingCubesUniform(k.meshCells)
	triangles := render.ToTriangles(sdf3, renderer)

	numTri := len(triangles)
	numVerts := numTri * 3

	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	faces := make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		// Compute face normal.
		n := tri.Normal()
		nx := float32(n.X)
		ny := float32(n.Y)
		nz := float32(n.Z)

		for j := 0; j < 3; j++ {
			v := tri[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, nx, ny, nz)
			faces = append(faces, uint32(i*3+j))
		}
	}

	return &mesh.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Faces:    faces,
	}, nil
}

// polygonArea returns the signed shoelace area, positive for
// counterclockwise outlines.
func polygonArea(pts [][2]float64) float64 {
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i][0]*pts[j][1] - pts[j][0]*pts[i][1]
	}
	return sum / 2
}
