// Package kernel defines the abstract geometry kernel interface.
// The excavation pipeline normally works on approximate triangle meshes;
// a Kernel provides exact constructive solid geometry for the cases where
// the approximation is not good enough. The abstraction allows swapping
// backends without changing the rest of the system.
package kernel

import "github.com/geomech/stratum/pkg/mesh"

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel is the abstract geometry kernel interface. Primitives sit with
// their footprint corner (or axis, for cylinders) at the origin and grow
// from z=0 toward +z, matching the depth-positive excavation convention.
type Kernel interface {
	// Primitives
	Slab(x, y, z float64) Solid
	Prism(outline [][2]float64, height float64) (Solid, error)
	Cylinder(height, radius float64, segments int) Solid

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	RotateZ(s Solid, degrees float64) Solid

	// Mesh output
	ToMesh(s Solid) (*mesh.Mesh, error)
}
